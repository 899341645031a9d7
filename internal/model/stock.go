package model

import (
	"time"

	"requisition-backend/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stock is the materialized balance of one material in one store.
// It always equals the signed sum of the StockMovement rows for the same pair.
type Stock struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StoreID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_store_material" json:"store_id"`
	Store      *Store          `gorm:"foreignKey:StoreID;constraint:OnDelete:RESTRICT;" json:"store,omitempty"`
	MaterialID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_store_material;index" json:"material_id"`
	Material   *Material       `gorm:"foreignKey:MaterialID;constraint:OnDelete:RESTRICT;" json:"material,omitempty"`
	QtyOnHand  decimal.Decimal `gorm:"type:numeric(14,3);not null;default:0" json:"qty_on_hand"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Stock) TableName() string {
	return "stock"
}

// StockMovement is one append-only ledger line. SourceType/SourceID is a loose
// reference to the GRN, issue or adjustment document; use Source() for the typed form.
type StockMovement struct {
	ID           uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StoreID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_movement_pair" json:"store_id"`
	Store        *Store              `gorm:"foreignKey:StoreID;constraint:OnDelete:RESTRICT;" json:"store,omitempty"`
	MaterialID   uuid.UUID           `gorm:"type:uuid;not null;index:idx_movement_pair" json:"material_id"`
	Material     *Material           `gorm:"foreignKey:MaterialID;constraint:OnDelete:RESTRICT;" json:"material,omitempty"`
	MovementType ledger.MovementType `gorm:"type:movement_type;not null;index" json:"movement_type"`
	Direction    *ledger.Direction   `gorm:"type:adjustment_direction" json:"direction,omitempty"`
	SourceType   ledger.SourceType   `gorm:"type:movement_source;not null;index:idx_movement_source" json:"source_type"`
	SourceID     uuid.UUID           `gorm:"type:uuid;not null;index:idx_movement_source" json:"source_id"`
	Qty          decimal.Decimal     `gorm:"type:numeric(14,3);not null" json:"qty"`
	UnitPrice    decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"unit_price"`
	BalanceAfter decimal.Decimal     `gorm:"type:numeric(14,3);not null" json:"balance_after"`
	Notes        string              `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy    *uuid.UUID          `gorm:"type:uuid;index" json:"created_by"`
	Creator      *User               `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL;" json:"creator,omitempty"`
	CreatedAt    time.Time           `gorm:"index" json:"created_at"`
}

// Source returns the typed document reference.
func (m *StockMovement) Source() (ledger.SourceRef, error) {
	return ledger.RefFromColumns(m.SourceType, m.SourceID)
}

// Entry returns the ledger view of the row.
func (m *StockMovement) Entry() (ledger.Entry, error) {
	src, err := m.Source()
	if err != nil {
		return ledger.Entry{}, err
	}
	e := ledger.Entry{Type: m.MovementType, Source: src, Qty: m.Qty}
	if m.Direction != nil {
		e.Direction = *m.Direction
	}
	return e, nil
}

// StockAdjustment is the document behind ADJUSTMENT movements (counts, write-offs, opening balances).
type StockAdjustment struct {
	ID         uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Number     string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	StoreID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"store_id"`
	MaterialID uuid.UUID        `gorm:"type:uuid;not null;index" json:"material_id"`
	Direction  ledger.Direction `gorm:"type:adjustment_direction;not null" json:"direction"`
	Qty        decimal.Decimal  `gorm:"type:numeric(14,3);not null" json:"qty"`
	Reason     string           `gorm:"type:text;not null" json:"reason"`
	MovementID *uuid.UUID       `gorm:"type:uuid" json:"movement_id"`
	CreatedBy  *uuid.UUID       `gorm:"type:uuid;index" json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
}
