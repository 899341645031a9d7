package service

import (
	"context"
	"errors"
	"fmt"

	"requisition-backend/internal/cache"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required,max=50"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" binding:"omitempty,dive,uuid"` // Permission UUIDs
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required,max=50"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required,dive,uuid"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	roleRepo  repository.RoleRepository
	userRepo  repository.UserRepository
	txManager repository.TransactionManager
	permCache cache.PermissionCache
}

func NewRoleService(
	roleRepo repository.RoleRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	permCache cache.PermissionCache,
) RoleService {
	return &roleService{roleRepo: roleRepo, userRepo: userRepo, txManager: txManager, permCache: permCache}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := parseID("role_id", id)
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	permIDs, err := parseIDs("permission_id", req.Permissions)
	if err != nil {
		return nil, err
	}

	role := model.Role{Name: req.Name, Description: req.Description}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Create(txCtx, &role); err != nil {
			return err
		}
		if len(permIDs) == 0 {
			return nil
		}
		perms, err := s.roleRepo.FindPermissionsByIDs(txCtx, permIDs)
		if err != nil {
			return fmt.Errorf("failed to fetch permissions: %w", err)
		}
		return s.roleRepo.ReplacePermissions(txCtx, &role, perms)
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := parseID("role_id", id)
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem && role.Name != req.Name {
		return nil, apperror.Validation("system roles cannot be renamed").With("role", role.Name)
	}

	oldName := role.Name
	role.Name = req.Name
	role.Description = req.Description
	if err := s.roleRepo.Update(ctx, role); err != nil {
		return nil, err
	}
	s.invalidate(ctx, oldName)

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := parseID("role_id", id)
	if err != nil {
		return err
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperror.Validationf("cannot delete system role '%s'", role.Name)
	}

	n, err := s.userRepo.CountByRole(ctx, roleID)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperror.Conflict("role is still assigned to users").With("users", n)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return s.roleRepo.Delete(txCtx, roleID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, role.Name)
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roleRepo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	id, err := parseID("role_id", roleID)
	if err != nil {
		return nil, err
	}
	permIDs, err := parseIDs("permission_id", req.PermissionIDs)
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		perms, err := s.roleRepo.FindPermissionsByIDs(txCtx, permIDs)
		if err != nil {
			return fmt.Errorf("failed to fetch permissions: %w", err)
		}
		if len(perms) != len(permIDs) {
			return apperror.Validation("unknown permission id in request")
		}
		return s.roleRepo.ReplacePermissions(txCtx, role, perms)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, role.Name)

	return s.GetRole(ctx, roleID)
}

// GetPermissionsByRoleName serves the permission codes of a role, from cache when possible.
func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	if s.permCache != nil {
		codes, ok, err := s.permCache.Get(ctx, roleName)
		if err != nil {
			logger.Warn("[GetPermissionsByRoleName] cache read failed", zap.String("role", roleName), zap.Error(err))
		} else if ok {
			return codes, nil
		}
	}

	codes, err := s.roleRepo.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	if s.permCache != nil {
		if err := s.permCache.Set(ctx, roleName, codes); err != nil {
			logger.Warn("[GetPermissionsByRoleName] cache write failed", zap.String("role", roleName), zap.Error(err))
		}
	}
	return codes, nil
}

func (s *roleService) invalidate(ctx context.Context, roleName string) {
	if s.permCache == nil {
		return
	}
	if err := s.permCache.Invalidate(ctx, roleName); err != nil {
		logger.Warn("[roleService] cache invalidation failed", zap.String("role", roleName), zap.Error(err))
	}
}

// DefaultPermissions is the permission catalog seeded at startup.
var DefaultPermissions = []model.Permission{
	{Code: model.PermDashboardRead, Name: "View dashboard", Group: "dashboard"},
	{Code: model.PermUsersRead, Name: "View users", Group: "users"},
	{Code: model.PermUsersWrite, Name: "Manage users", Group: "users"},
	{Code: model.PermUsersDelete, Name: "Delete users", Group: "users"},
	{Code: model.PermRolesManage, Name: "Manage roles and permissions", Group: "roles"},
	{Code: model.PermAuditRead, Name: "View audit log", Group: "audit"},
	{Code: model.PermCatalogRead, Name: "View sites, stores and materials", Group: "catalog"},
	{Code: model.PermCatalogWrite, Name: "Manage sites, stores and materials", Group: "catalog"},
	{Code: model.PermRequestsRead, Name: "View requests", Group: "requests"},
	{Code: model.PermRequestsCreate, Name: "Create and submit requests", Group: "requests"},
	{Code: model.PermRequestsReviewDSE, Name: "Review requests at DSE level", Group: "requests"},
	{Code: model.PermRequestsReviewPadiri, Name: "Review requests at PADIRI level", Group: "requests"},
	{Code: model.PermRequestsIssue, Name: "Issue stock against requests", Group: "requests"},
	{Code: model.PermRequestsReceive, Name: "Confirm receipt of issued materials", Group: "requests"},
	{Code: model.PermRequestsClose, Name: "Close received requests", Group: "requests"},
	{Code: model.PermStockRead, Name: "View stock and movements", Group: "stock"},
	{Code: model.PermStockAdjust, Name: "Adjust stock", Group: "stock"},
	{Code: model.PermPurchasesRead, Name: "View purchase orders and receipts", Group: "purchases"},
	{Code: model.PermPurchasesWrite, Name: "Manage purchase orders", Group: "purchases"},
	{Code: model.PermPurchasesReceive, Name: "Receive goods", Group: "purchases"},
	{Code: model.PermExportsRead, Name: "Export reports", Group: "exports"},
}

// DefaultRoles maps each built-in role to its permission codes.
var DefaultRoles = map[string]struct {
	Description string
	PermCodes   []string
}{
	model.RoleAdmin: {
		Description: "Administrator, full access",
	},
	model.RoleRequester: {
		Description: "Site staff raising and receiving requests",
		PermCodes: []string{
			model.PermCatalogRead, model.PermRequestsRead, model.PermRequestsCreate,
			model.PermRequestsReceive, model.PermStockRead,
		},
	},
	model.RoleDSE: {
		Description: "First-level reviewer",
		PermCodes: []string{
			model.PermDashboardRead, model.PermCatalogRead, model.PermRequestsRead,
			model.PermRequestsReviewDSE, model.PermStockRead, model.PermExportsRead,
		},
	},
	model.RolePadiri: {
		Description: "Second-level reviewer",
		PermCodes: []string{
			model.PermDashboardRead, model.PermCatalogRead, model.PermRequestsRead,
			model.PermRequestsReviewPadiri, model.PermRequestsClose, model.PermStockRead,
			model.PermExportsRead, model.PermAuditRead,
		},
	},
	model.RoleStorekeeper: {
		Description: "Store operator issuing and receiving stock",
		PermCodes: []string{
			model.PermDashboardRead, model.PermCatalogRead, model.PermCatalogWrite,
			model.PermRequestsRead, model.PermRequestsIssue, model.PermRequestsClose,
			model.PermStockRead, model.PermStockAdjust,
			model.PermPurchasesRead, model.PermPurchasesWrite, model.PermPurchasesReceive,
			model.PermExportsRead,
		},
	},
}

// SeedDefaultRolesAndPermissions creates the default permissions and roles if not already present.
// The admin role always receives every permission.
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		perms := make([]model.Permission, len(DefaultPermissions))
		copy(perms, DefaultPermissions)

		permByCode := make(map[string]model.Permission, len(perms))
		for i := range perms {
			if err := s.roleRepo.UpsertPermission(txCtx, &perms[i]); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", perms[i].Code, err)
			}
			permByCode[perms[i].Code] = perms[i]
		}

		for roleName, def := range DefaultRoles {
			role, err := s.roleRepo.FindByName(txCtx, roleName)
			if errors.Is(err, apperror.ErrNotFound) {
				role = &model.Role{Name: roleName, Description: def.Description, IsSystem: true}
				if err := s.roleRepo.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role '%s': %w", roleName, err)
				}
			} else if err != nil {
				return err
			}

			var assigned []model.Permission
			if roleName == model.RoleAdmin {
				assigned = perms
			} else {
				for _, code := range def.PermCodes {
					if p, ok := permByCode[code]; ok {
						assigned = append(assigned, p)
					}
				}
			}
			if err := s.roleRepo.ReplacePermissions(txCtx, role, assigned); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", roleName, err)
			}
		}
		return nil
	})
}

// --- Helpers ---

func parseIDs(field string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(field, r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format(timeLayout),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:    p.ID.String(),
		Code:  p.Code,
		Name:  p.Name,
		Group: p.Group,
	}
}
