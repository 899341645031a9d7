package model

import (
	"time"

	"github.com/google/uuid"
)

// Permission codes checked by the API and by the request workflow.
const (
	PermDashboardRead = "dashboard.read"
	PermUsersRead     = "users.read"
	PermUsersWrite    = "users.write"
	PermUsersDelete   = "users.delete"
	PermRolesManage   = "roles.manage"
	PermAuditRead     = "audit.read"

	PermCatalogRead  = "catalog.read"
	PermCatalogWrite = "catalog.write"

	PermRequestsRead         = "requests.read"
	PermRequestsCreate       = "requests.create"
	PermRequestsReviewDSE    = "requests.review.dse"
	PermRequestsReviewPadiri = "requests.review.padiri"
	PermRequestsIssue        = "requests.issue"
	PermRequestsReceive      = "requests.receive"
	PermRequestsClose        = "requests.close"

	PermStockRead   = "stock.read"
	PermStockAdjust = "stock.adjust"

	PermPurchasesRead    = "purchases.read"
	PermPurchasesWrite   = "purchases.write"
	PermPurchasesReceive = "purchases.receive"

	PermExportsRead = "exports.read"
)

// Built-in role names.
const (
	RoleAdmin       = "admin"
	RoleRequester   = "requester"
	RoleDSE         = "dse"
	RolePadiri      = "padiri"
	RoleStorekeeper = "storekeeper"
)

// Role groups permissions; every user has exactly one.
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPermission reports whether the loaded permission set contains code.
func (r *Role) HasPermission(code string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p.Code == code {
			return true
		}
	}
	return false
}

type Permission struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	Group string    `gorm:"type:varchar(50);not null;index" json:"group"`
}
