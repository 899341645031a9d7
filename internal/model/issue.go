package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Issue is the document under which a storekeeper hands out stock for a request.
// Every issuance call produces its own Issue; a request collects one per partial issuance.
type Issue struct {
	ID        uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Number    string      `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	RequestID uuid.UUID   `gorm:"type:uuid;not null;index" json:"request_id"`
	StoreID   uuid.UUID   `gorm:"type:uuid;not null;index" json:"store_id"`
	IssuedBy  uuid.UUID   `gorm:"type:uuid;not null;index" json:"issued_by"`
	Issuer    *User       `gorm:"foreignKey:IssuedBy;constraint:OnDelete:RESTRICT;" json:"issuer,omitempty"`
	Items     []IssueItem `gorm:"foreignKey:IssueID" json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}

type IssueItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	IssueID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"issue_id"`
	RequestItemID uuid.UUID       `gorm:"type:uuid;not null;index" json:"request_item_id"`
	MaterialID    uuid.UUID       `gorm:"type:uuid;not null" json:"material_id"`
	Qty           decimal.Decimal `gorm:"type:numeric(14,3);not null" json:"qty"`
	MovementID    uuid.UUID       `gorm:"type:uuid;not null" json:"movement_id"`
	Note          string          `gorm:"type:text" json:"note"`
	CreatedAt     time.Time       `json:"created_at"`
}
