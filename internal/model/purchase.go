package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	POStatusOpen              = "OPEN"
	POStatusPartiallyReceived = "PARTIALLY_RECEIVED"
	POStatusReceived          = "RECEIVED"
	POStatusCancelled         = "CANCELLED"
)

// PurchaseOrder replenishes a store from a supplier.
type PurchaseOrder struct {
	ID           uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Number       string              `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	SupplierID   *uuid.UUID          `gorm:"type:uuid;index" json:"supplier_id"`
	Supplier     *Supplier           `gorm:"foreignKey:SupplierID;constraint:OnDelete:SET NULL;" json:"supplier,omitempty"`
	SupplierName string              `gorm:"type:varchar(255);not null" json:"supplier_name"`
	StoreID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"store_id"`
	Store        *Store              `gorm:"foreignKey:StoreID;constraint:OnDelete:RESTRICT;" json:"store,omitempty"`
	Status       string              `gorm:"type:varchar(30);not null;default:'OPEN';index" json:"status"`
	Note         string              `gorm:"type:text" json:"note"`
	ExpectedAt   *time.Time          `json:"expected_at"`
	CreatedBy    *uuid.UUID          `gorm:"type:uuid;index" json:"created_by"`
	Items        []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderID" json:"items"`
	CreatedAt    time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// RecomputeStatus derives the receipt status from the item quantities.
func (po *PurchaseOrder) RecomputeStatus() {
	if po.Status == POStatusCancelled {
		return
	}
	complete, touched := true, false
	for _, it := range po.Items {
		if it.QtyReceived.LessThan(it.QtyOrdered) {
			complete = false
		}
		if it.QtyReceived.IsPositive() {
			touched = true
		}
	}
	switch {
	case complete && len(po.Items) > 0:
		po.Status = POStatusReceived
	case touched:
		po.Status = POStatusPartiallyReceived
	default:
		po.Status = POStatusOpen
	}
}

type PurchaseOrderItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PurchaseOrderID uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	MaterialID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"material_id"`
	Material        *Material       `gorm:"foreignKey:MaterialID;constraint:OnDelete:RESTRICT;" json:"material,omitempty"`
	QtyOrdered      decimal.Decimal `gorm:"type:numeric(14,3);not null" json:"qty_ordered"`
	QtyReceived     decimal.Decimal `gorm:"type:numeric(14,3);not null;default:0" json:"qty_received"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"unit_price"`
}

// Outstanding is what is still expected from the supplier.
func (it *PurchaseOrderItem) Outstanding() decimal.Decimal {
	return it.QtyOrdered.Sub(it.QtyReceived)
}

// GoodsReceipt (GRN) confirms materials delivered against a purchase order.
type GoodsReceipt struct {
	ID              uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Number          string             `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	PurchaseOrderID uuid.UUID          `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	PurchaseOrder   *PurchaseOrder     `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:RESTRICT;" json:"purchase_order,omitempty"`
	StoreID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"store_id"`
	ReceivedBy      *uuid.UUID         `gorm:"type:uuid;index" json:"received_by"`
	DeliveryNote    string             `gorm:"type:varchar(100)" json:"delivery_note"`
	Note            string             `gorm:"type:text" json:"note"`
	Items           []GoodsReceiptItem `gorm:"foreignKey:GoodsReceiptID" json:"items"`
	CreatedAt       time.Time          `gorm:"index" json:"created_at"`
}

type GoodsReceiptItem struct {
	ID                  uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GoodsReceiptID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"goods_receipt_id"`
	PurchaseOrderItemID uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_order_item_id"`
	MaterialID          uuid.UUID       `gorm:"type:uuid;not null" json:"material_id"`
	Qty                 decimal.Decimal `gorm:"type:numeric(14,3);not null" json:"qty"`
	UnitPrice           decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"unit_price"`
	MovementID          *uuid.UUID      `gorm:"type:uuid" json:"movement_id"`
}
