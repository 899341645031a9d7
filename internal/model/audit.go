package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateRequest        = "CREATE_REQUEST"
	ActionUpdateRequest        = "UPDATE_REQUEST"
	ActionRequestStatusChanged = "REQUEST_STATUS_CHANGED"
	ActionReviewRequest        = "REVIEW_REQUEST"
	ActionIssueItem            = "ISSUE_REQUEST_ITEM"
	ActionReceiveRequest       = "RECEIVE_REQUEST"

	ActionRecordMovement = "RECORD_STOCK_MOVEMENT"
	ActionAdjustStock    = "ADJUST_STOCK"

	ActionCreatePurchaseOrder = "CREATE_PURCHASE_ORDER"
	ActionCancelPurchaseOrder = "CANCEL_PURCHASE_ORDER"
	ActionCreateGoodsReceipt  = "CREATE_GOODS_RECEIPT"
	ActionCreateSupplier      = "CREATE_SUPPLIER"
	ActionUpdateSupplier      = "UPDATE_SUPPLIER"
	ActionDeleteSupplier      = "DELETE_SUPPLIER"

	ActionCreateCatalog  = "CREATE_CATALOG_ENTRY"
	ActionUpdateCatalog  = "UPDATE_CATALOG_ENTRY"
	ActionDeleteCatalog  = "DELETE_CATALOG_ENTRY"
	ActionImportMaterial = "IMPORT_MATERIALS"

	ActionCreateUser = "CREATE_USER"
	ActionUpdateUser = "UPDATE_USER"
	ActionDeleteUser = "DELETE_USER"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(50);index" json:"entity_type"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
