package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
)

// --- DTOs ---

type SupplierAddressInput struct {
	AddressType string `json:"address_type" binding:"required,oneof=BILLING ORIGIN"`
	FullAddress string `json:"full_address" binding:"required"`
	IsDefault   bool   `json:"is_default"`
}

type CreateSupplierRequest struct {
	Name          string                 `json:"name" binding:"required,max=255"`
	TaxCode       string                 `json:"tax_code" binding:"max=50"`
	ContactPerson string                 `json:"contact_person" binding:"max=255"`
	Phone         string                 `json:"phone" binding:"max=50"`
	Email         string                 `json:"email" binding:"omitempty,email"`
	Addresses     []SupplierAddressInput `json:"addresses" binding:"dive"`
}

// UpdateSupplierRequest is a partial update. Addresses nil keeps the current set, [] clears it.
type UpdateSupplierRequest struct {
	Name          *string                 `json:"name" binding:"omitempty,max=255"`
	TaxCode       *string                 `json:"tax_code" binding:"omitempty,max=50"`
	ContactPerson *string                 `json:"contact_person" binding:"omitempty,max=255"`
	Phone         *string                 `json:"phone" binding:"omitempty,max=50"`
	Email         *string                 `json:"email"`
	IsActive      *bool                   `json:"is_active"`
	Addresses     *[]SupplierAddressInput `json:"addresses" binding:"omitempty,dive"`
}

// --- Interface ---

type SupplierService interface {
	CreateSupplier(ctx context.Context, actor uuid.UUID, req CreateSupplierRequest) (*model.Supplier, error)
	UpdateSupplier(ctx context.Context, actor uuid.UUID, id string, req UpdateSupplierRequest) (*model.Supplier, error)
	DeleteSupplier(ctx context.Context, actor uuid.UUID, id string) error
	GetSupplier(ctx context.Context, id string) (*model.Supplier, error)
	ListSuppliers(ctx context.Context, search string, activeOnly bool, page, limit int) ([]model.Supplier, int64, error)
}

type supplierService struct {
	repo      repository.SupplierRepository
	txManager repository.TransactionManager
	audit     audit
}

func NewSupplierService(repo repository.SupplierRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) SupplierService {
	return &supplierService{repo: repo, txManager: txManager, audit: audit{repo: auditRepo}}
}

// --- Validation helpers ---

func validateSupplierAddresses(addresses []SupplierAddressInput) error {
	defaults := 0
	for i, addr := range addresses {
		if addr.AddressType != model.AddressTypeBilling && addr.AddressType != model.AddressTypeOrigin {
			return apperror.Validationf("addresses[%d]: address_type must be BILLING or ORIGIN", i)
		}
		if strings.TrimSpace(addr.FullAddress) == "" {
			return apperror.Validationf("addresses[%d]: full_address is required", i)
		}
		if addr.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return apperror.Validation("only one address can be the default")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperror.Validation("invalid email format").With("email", email)
	}
	return nil
}

func toAddressModels(supplierID uuid.UUID, in []SupplierAddressInput) []model.SupplierAddress {
	addresses := make([]model.SupplierAddress, 0, len(in))
	for _, a := range in {
		addresses = append(addresses, model.SupplierAddress{
			SupplierID:  supplierID,
			AddressType: a.AddressType,
			FullAddress: strings.TrimSpace(a.FullAddress),
			IsDefault:   a.IsDefault,
		})
	}
	return addresses
}

// --- CRUD ---

func (s *supplierService) CreateSupplier(ctx context.Context, actor uuid.UUID, req CreateSupplierRequest) (*model.Supplier, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("name is required")
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validateSupplierAddresses(req.Addresses); err != nil {
		return nil, err
	}

	supplier := &model.Supplier{
		Name:          name,
		TaxCode:       req.TaxCode,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		IsActive:      true,
		// supplier_id is filled in by the association
		Addresses: toAddressModels(uuid.Nil, req.Addresses),
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, supplier); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionCreateSupplier, "supplier", supplier.ID.String(), supplier.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

func (s *supplierService) UpdateSupplier(ctx context.Context, actor uuid.UUID, id string, req UpdateSupplierRequest) (*model.Supplier, error) {
	supplierID, err := parseID("supplier_id", id)
	if err != nil {
		return nil, err
	}
	if req.Addresses != nil {
		if err := validateSupplierAddresses(*req.Addresses); err != nil {
			return nil, err
		}
	}
	if req.Email != nil {
		if err := validateEmail(*req.Email); err != nil {
			return nil, err
		}
	}

	var supplier *model.Supplier
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		supplier, err = s.repo.FindByID(txCtx, supplierID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperror.Validation("name cannot be empty")
			}
			supplier.Name = name
		}
		if req.TaxCode != nil {
			supplier.TaxCode = *req.TaxCode
		}
		if req.ContactPerson != nil {
			supplier.ContactPerson = *req.ContactPerson
		}
		if req.Phone != nil {
			supplier.Phone = *req.Phone
		}
		if req.Email != nil {
			supplier.Email = *req.Email
		}
		if req.IsActive != nil {
			supplier.IsActive = *req.IsActive
		}

		if err := s.repo.Update(txCtx, supplier); err != nil {
			return err
		}
		if req.Addresses != nil {
			addresses := toAddressModels(supplierID, *req.Addresses)
			if err := s.repo.ReplaceAddresses(txCtx, supplierID, addresses); err != nil {
				return fmt.Errorf("failed to replace supplier addresses: %w", err)
			}
			supplier.Addresses = addresses
		}
		return s.audit.log(txCtx, actor, model.ActionUpdateSupplier, "supplier", supplier.ID.String(), supplier.Name, req)
	})
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

// DeleteSupplier soft-deletes; purchase orders keep the supplier name they were placed with.
func (s *supplierService) DeleteSupplier(ctx context.Context, actor uuid.UUID, id string) error {
	supplierID, err := parseID("supplier_id", id)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		supplier, err := s.repo.FindByID(txCtx, supplierID)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, supplierID); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionDeleteSupplier, "supplier", supplier.ID.String(), supplier.Name, nil)
	})
}

func (s *supplierService) GetSupplier(ctx context.Context, id string) (*model.Supplier, error) {
	supplierID, err := parseID("supplier_id", id)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, supplierID)
}

func (s *supplierService) ListSuppliers(ctx context.Context, search string, activeOnly bool, page, limit int) ([]model.Supplier, int64, error) {
	page, limit = normalizePage(page, limit)
	return s.repo.List(ctx, strings.TrimSpace(search), activeOnly, page, limit)
}
