package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// --- DTOs ---

type SiteRequest struct {
	Code     string `json:"code" binding:"required,max=30"`
	Name     string `json:"name" binding:"required,max=255"`
	Location string `json:"location" binding:"max=255"`
	Phone    string `json:"phone" binding:"max=20"`
}

type StoreRequest struct {
	SiteID   string `json:"site_id" binding:"required,uuid"`
	Code     string `json:"code" binding:"required,max=30"`
	Name     string `json:"name" binding:"required,max=255"`
	KeeperID string `json:"keeper_id" binding:"omitempty,uuid"`
}

type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

type UnitRequest struct {
	Code string `json:"code" binding:"required,max=20"`
	Name string `json:"name" binding:"required,max=100"`
}

type MaterialRequest struct {
	Code         string          `json:"code" binding:"required,max=50"`
	Name         string          `json:"name" binding:"required,max=255"`
	Description  string          `json:"description"`
	CategoryID   string          `json:"category_id" binding:"required,uuid"`
	UnitID       string          `json:"unit_id" binding:"required,uuid"`
	ReorderLevel decimal.Decimal `json:"reorder_level" binding:"decimal_gte0"`
}

// ImportRowError describes a skipped spreadsheet row (1-based, header included).
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Skipped []ImportRowError `json:"skipped"`
}

// --- Interface ---

type CatalogService interface {
	ListSites(ctx context.Context, search string) ([]model.Site, error)
	GetSite(ctx context.Context, id string) (*model.Site, error)
	CreateSite(ctx context.Context, actor uuid.UUID, req SiteRequest) (*model.Site, error)
	UpdateSite(ctx context.Context, actor uuid.UUID, id string, req SiteRequest) (*model.Site, error)
	DeleteSite(ctx context.Context, actor uuid.UUID, id string) error

	ListStores(ctx context.Context, siteID string) ([]model.Store, error)
	GetStore(ctx context.Context, id string) (*model.Store, error)
	CreateStore(ctx context.Context, actor uuid.UUID, req StoreRequest) (*model.Store, error)
	UpdateStore(ctx context.Context, actor uuid.UUID, id string, req StoreRequest) (*model.Store, error)
	DeleteStore(ctx context.Context, actor uuid.UUID, id string) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, actor uuid.UUID, req CategoryRequest) (*model.Category, error)
	UpdateCategory(ctx context.Context, actor uuid.UUID, id string, req CategoryRequest) (*model.Category, error)
	DeleteCategory(ctx context.Context, actor uuid.UUID, id string) error

	ListUnits(ctx context.Context) ([]model.Unit, error)
	CreateUnit(ctx context.Context, actor uuid.UUID, req UnitRequest) (*model.Unit, error)
	DeleteUnit(ctx context.Context, actor uuid.UUID, id string) error

	ListMaterials(ctx context.Context, search, categoryID string, page, limit int) ([]model.Material, int64, error)
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	CreateMaterial(ctx context.Context, actor uuid.UUID, req MaterialRequest) (*model.Material, error)
	UpdateMaterial(ctx context.Context, actor uuid.UUID, id string, req MaterialRequest) (*model.Material, error)
	DeleteMaterial(ctx context.Context, actor uuid.UUID, id string) error
	ImportMaterials(ctx context.Context, actor uuid.UUID, r io.Reader) (*ImportResult, error)
}

type catalogService struct {
	siteRepo     repository.SiteRepository
	materialRepo repository.MaterialRepository
	userRepo     repository.UserRepository
	txManager    repository.TransactionManager
	audit        audit
}

func NewCatalogService(
	siteRepo repository.SiteRepository,
	materialRepo repository.MaterialRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) CatalogService {
	return &catalogService{
		siteRepo:     siteRepo,
		materialRepo: materialRepo,
		userRepo:     userRepo,
		txManager:    txManager,
		audit:        audit{repo: auditRepo},
	}
}

// mutate runs fn and its audit row in one transaction.
func (s *catalogService) mutate(ctx context.Context, actor uuid.UUID, action, entityType string, fn func(txCtx context.Context) (id, name string, details interface{}, err error)) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		id, name, details, err := fn(txCtx)
		if err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, action, entityType, id, name, details)
	})
}

// --- Sites ---

func (s *catalogService) ListSites(ctx context.Context, search string) ([]model.Site, error) {
	return s.siteRepo.ListSites(ctx, search)
}

func (s *catalogService) GetSite(ctx context.Context, id string) (*model.Site, error) {
	siteID, err := parseID("site_id", id)
	if err != nil {
		return nil, err
	}
	return s.siteRepo.FindSite(ctx, siteID)
}

func (s *catalogService) CreateSite(ctx context.Context, actor uuid.UUID, req SiteRequest) (*model.Site, error) {
	site := &model.Site{Code: req.Code, Name: req.Name, Location: req.Location, Phone: req.Phone}
	err := s.mutate(ctx, actor, model.ActionCreateCatalog, "site", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.siteRepo.CreateSite(txCtx, site)
		return site.ID.String(), site.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

func (s *catalogService) UpdateSite(ctx context.Context, actor uuid.UUID, id string, req SiteRequest) (*model.Site, error) {
	site, err := s.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	site.Code, site.Name, site.Location, site.Phone = req.Code, req.Name, req.Location, req.Phone
	err = s.mutate(ctx, actor, model.ActionUpdateCatalog, "site", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.siteRepo.UpdateSite(txCtx, site)
		return site.ID.String(), site.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

func (s *catalogService) DeleteSite(ctx context.Context, actor uuid.UUID, id string) error {
	site, err := s.GetSite(ctx, id)
	if err != nil {
		return err
	}
	if len(site.Stores) > 0 {
		return apperror.Conflict("site still has stores").With("stores", len(site.Stores))
	}
	return s.mutate(ctx, actor, model.ActionDeleteCatalog, "site", func(txCtx context.Context) (string, string, interface{}, error) {
		return site.ID.String(), site.Name, nil, s.siteRepo.DeleteSite(txCtx, site.ID)
	})
}

// --- Stores ---

func (s *catalogService) ListStores(ctx context.Context, siteID string) ([]model.Store, error) {
	sid, err := parseOptionalID("site_id", siteID)
	if err != nil {
		return nil, err
	}
	return s.siteRepo.ListStores(ctx, sid)
}

func (s *catalogService) GetStore(ctx context.Context, id string) (*model.Store, error) {
	storeID, err := parseID("store_id", id)
	if err != nil {
		return nil, err
	}
	return s.siteRepo.FindStore(ctx, storeID)
}

func (s *catalogService) applyStore(ctx context.Context, store *model.Store, req StoreRequest) error {
	siteID, err := parseID("site_id", req.SiteID)
	if err != nil {
		return err
	}
	if _, err := s.siteRepo.FindSite(ctx, siteID); err != nil {
		return err
	}
	keeperID, err := parseOptionalID("keeper_id", req.KeeperID)
	if err != nil {
		return err
	}
	if keeperID != nil {
		if _, err := s.userRepo.GetByID(ctx, *keeperID); err != nil {
			return err
		}
	}
	store.SiteID, store.Code, store.Name, store.KeeperID = siteID, req.Code, req.Name, keeperID
	store.Site = nil
	return nil
}

func (s *catalogService) CreateStore(ctx context.Context, actor uuid.UUID, req StoreRequest) (*model.Store, error) {
	store := &model.Store{}
	if err := s.applyStore(ctx, store, req); err != nil {
		return nil, err
	}
	err := s.mutate(ctx, actor, model.ActionCreateCatalog, "store", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.siteRepo.CreateStore(txCtx, store)
		return store.ID.String(), store.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (s *catalogService) UpdateStore(ctx context.Context, actor uuid.UUID, id string, req StoreRequest) (*model.Store, error) {
	store, err := s.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyStore(ctx, store, req); err != nil {
		return nil, err
	}
	err = s.mutate(ctx, actor, model.ActionUpdateCatalog, "store", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.siteRepo.UpdateStore(txCtx, store)
		return store.ID.String(), store.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (s *catalogService) DeleteStore(ctx context.Context, actor uuid.UUID, id string) error {
	store, err := s.GetStore(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, actor, model.ActionDeleteCatalog, "store", func(txCtx context.Context) (string, string, interface{}, error) {
		return store.ID.String(), store.Name, nil, s.siteRepo.DeleteStore(txCtx, store.ID)
	})
}

// --- Categories and units ---

func (s *catalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.materialRepo.ListCategories(ctx)
}

func (s *catalogService) CreateCategory(ctx context.Context, actor uuid.UUID, req CategoryRequest) (*model.Category, error) {
	c := &model.Category{Name: req.Name, Description: req.Description}
	err := s.mutate(ctx, actor, model.ActionCreateCatalog, "category", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.materialRepo.CreateCategory(txCtx, c)
		return c.ID.String(), c.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, actor uuid.UUID, id string, req CategoryRequest) (*model.Category, error) {
	cid, err := parseID("category_id", id)
	if err != nil {
		return nil, err
	}
	c, err := s.materialRepo.FindCategory(ctx, cid)
	if err != nil {
		return nil, err
	}
	c.Name, c.Description = req.Name, req.Description
	err = s.mutate(ctx, actor, model.ActionUpdateCatalog, "category", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.materialRepo.UpdateCategory(txCtx, c)
		return c.ID.String(), c.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, actor uuid.UUID, id string) error {
	cid, err := parseID("category_id", id)
	if err != nil {
		return err
	}
	c, err := s.materialRepo.FindCategory(ctx, cid)
	if err != nil {
		return err
	}
	return s.mutate(ctx, actor, model.ActionDeleteCatalog, "category", func(txCtx context.Context) (string, string, interface{}, error) {
		return c.ID.String(), c.Name, nil, s.materialRepo.DeleteCategory(txCtx, c.ID)
	})
}

func (s *catalogService) ListUnits(ctx context.Context) ([]model.Unit, error) {
	return s.materialRepo.ListUnits(ctx)
}

func (s *catalogService) CreateUnit(ctx context.Context, actor uuid.UUID, req UnitRequest) (*model.Unit, error) {
	u := &model.Unit{Code: req.Code, Name: req.Name}
	err := s.mutate(ctx, actor, model.ActionCreateCatalog, "unit", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.materialRepo.CreateUnit(txCtx, u)
		return u.ID.String(), u.Code, req, err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *catalogService) DeleteUnit(ctx context.Context, actor uuid.UUID, id string) error {
	uid, err := parseID("unit_id", id)
	if err != nil {
		return err
	}
	u, err := s.materialRepo.FindUnit(ctx, uid)
	if err != nil {
		return err
	}
	return s.mutate(ctx, actor, model.ActionDeleteCatalog, "unit", func(txCtx context.Context) (string, string, interface{}, error) {
		return u.ID.String(), u.Code, nil, s.materialRepo.DeleteUnit(txCtx, u.ID)
	})
}

// --- Materials ---

func (s *catalogService) ListMaterials(ctx context.Context, search, categoryID string, page, limit int) ([]model.Material, int64, error) {
	page, limit = normalizePage(page, limit)
	cid, err := parseOptionalID("category_id", categoryID)
	if err != nil {
		return nil, 0, err
	}
	return s.materialRepo.List(ctx, repository.MaterialFilter{Search: search, CategoryID: cid}, page, limit)
}

func (s *catalogService) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	mid, err := parseID("material_id", id)
	if err != nil {
		return nil, err
	}
	return s.materialRepo.FindByID(ctx, mid)
}

func (s *catalogService) applyMaterial(ctx context.Context, m *model.Material, req MaterialRequest) error {
	if req.ReorderLevel.IsNegative() {
		return apperror.Validation("reorder_level cannot be negative")
	}
	categoryID, err := parseID("category_id", req.CategoryID)
	if err != nil {
		return err
	}
	unitID, err := parseID("unit_id", req.UnitID)
	if err != nil {
		return err
	}
	category, err := s.materialRepo.FindCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	unit, err := s.materialRepo.FindUnit(ctx, unitID)
	if err != nil {
		return err
	}
	m.Code, m.Name, m.Description = strings.TrimSpace(req.Code), req.Name, req.Description
	m.CategoryID, m.UnitID, m.ReorderLevel = category.ID, unit.ID, req.ReorderLevel
	m.Category, m.Unit = category, unit
	return nil
}

func (s *catalogService) CreateMaterial(ctx context.Context, actor uuid.UUID, req MaterialRequest) (*model.Material, error) {
	m := &model.Material{}
	if err := s.applyMaterial(ctx, m, req); err != nil {
		return nil, err
	}
	err := s.mutate(ctx, actor, model.ActionCreateCatalog, "material", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.materialRepo.Create(txCtx, m)
		return m.ID.String(), m.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *catalogService) UpdateMaterial(ctx context.Context, actor uuid.UUID, id string, req MaterialRequest) (*model.Material, error) {
	m, err := s.GetMaterial(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyMaterial(ctx, m, req); err != nil {
		return nil, err
	}
	err = s.mutate(ctx, actor, model.ActionUpdateCatalog, "material", func(txCtx context.Context) (string, string, interface{}, error) {
		err := s.materialRepo.Update(txCtx, m)
		return m.ID.String(), m.Name, req, err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *catalogService) DeleteMaterial(ctx context.Context, actor uuid.UUID, id string) error {
	m, err := s.GetMaterial(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, actor, model.ActionDeleteCatalog, "material", func(txCtx context.Context) (string, string, interface{}, error) {
		return m.ID.String(), m.Name, nil, s.materialRepo.Delete(txCtx, m.ID)
	})
}

// importRow is one parsed spreadsheet line: code, name, category, unit, reorder level, description.
type importRow struct {
	line         int
	code         string
	name         string
	category     string
	unit         string
	reorderLevel decimal.Decimal
	description  string
}

// parseMaterialSheet reads the first sheet. A first row whose first cell is "code" is a header.
func parseMaterialSheet(r io.Reader) ([]importRow, []ImportRowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, apperror.Validationf("unable to read spreadsheet: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, apperror.Validation("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, apperror.Validationf("unable to read sheet %s: %v", sheets[0], err)
	}

	start := 0
	if len(rows) > 0 && len(rows[0]) > 0 && strings.EqualFold(strings.TrimSpace(rows[0][0]), "code") {
		start = 1
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var parsed []importRow
	var skipped []ImportRowError
	seen := map[string]int{}
	for i := start; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		if strings.Join(row, "") == "" {
			continue
		}
		ir := importRow{
			line:        line,
			code:        cell(row, 0),
			name:        cell(row, 1),
			category:    cell(row, 2),
			unit:        cell(row, 3),
			description: cell(row, 5),
		}
		if ir.code == "" || ir.name == "" || ir.category == "" || ir.unit == "" {
			skipped = append(skipped, ImportRowError{Row: line, Message: "code, name, category and unit are required"})
			continue
		}
		if prev, dup := seen[strings.ToLower(ir.code)]; dup {
			skipped = append(skipped, ImportRowError{Row: line, Message: fmt.Sprintf("duplicate code, first seen on row %d", prev)})
			continue
		}
		if raw := cell(row, 4); raw != "" {
			lvl, err := decimal.NewFromString(raw)
			if err != nil || lvl.IsNegative() {
				skipped = append(skipped, ImportRowError{Row: line, Message: "reorder level must be a non-negative number"})
				continue
			}
			ir.reorderLevel = lvl
		}
		seen[strings.ToLower(ir.code)] = line
		parsed = append(parsed, ir)
	}
	return parsed, skipped, nil
}

// ImportMaterials upserts materials by code from an XLSX upload. Unknown categories and
// units are created. Valid rows are applied in a single transaction.
func (s *catalogService) ImportMaterials(ctx context.Context, actor uuid.UUID, r io.Reader) (*ImportResult, error) {
	rows, skipped, err := parseMaterialSheet(r)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Skipped: skipped}
	if result.Skipped == nil {
		result.Skipped = []ImportRowError{}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		categories := map[string]uuid.UUID{}
		units := map[string]uuid.UUID{}

		for _, row := range rows {
			catID, err := s.categoryFor(txCtx, categories, row.category)
			if err != nil {
				return err
			}
			unitID, err := s.unitFor(txCtx, units, row.unit)
			if err != nil {
				return err
			}

			existing, err := s.materialRepo.FindByCode(txCtx, row.code)
			switch {
			case errors.Is(err, apperror.ErrNotFound):
				m := &model.Material{
					Code: row.code, Name: row.name, Description: row.description,
					CategoryID: catID, UnitID: unitID, ReorderLevel: row.reorderLevel,
				}
				if err := s.materialRepo.Create(txCtx, m); err != nil {
					return fmt.Errorf("row %d: %w", row.line, err)
				}
				result.Created++
			case err != nil:
				return err
			default:
				existing.Name, existing.CategoryID, existing.UnitID = row.name, catID, unitID
				existing.ReorderLevel = row.reorderLevel
				if row.description != "" {
					existing.Description = row.description
				}
				if err := s.materialRepo.Update(txCtx, existing); err != nil {
					return fmt.Errorf("row %d: %w", row.line, err)
				}
				result.Updated++
			}
		}

		return s.audit.log(txCtx, actor, model.ActionImportMaterial, "material", "", "xlsx import", map[string]interface{}{
			"created": result.Created,
			"updated": result.Updated,
			"skipped": len(result.Skipped),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *catalogService) categoryFor(ctx context.Context, cache map[string]uuid.UUID, name string) (uuid.UUID, error) {
	key := strings.ToLower(name)
	if id, ok := cache[key]; ok {
		return id, nil
	}
	c, err := s.materialRepo.FindCategoryByName(ctx, name)
	if errors.Is(err, apperror.ErrNotFound) {
		c = &model.Category{Name: name}
		err = s.materialRepo.CreateCategory(ctx, c)
	}
	if err != nil {
		return uuid.Nil, err
	}
	cache[key] = c.ID
	return c.ID, nil
}

func (s *catalogService) unitFor(ctx context.Context, cache map[string]uuid.UUID, code string) (uuid.UUID, error) {
	key := strings.ToLower(code)
	if id, ok := cache[key]; ok {
		return id, nil
	}
	u, err := s.materialRepo.FindUnitByCode(ctx, code)
	if errors.Is(err, apperror.ErrNotFound) {
		u = &model.Unit{Code: code, Name: code}
		err = s.materialRepo.CreateUnit(ctx, u)
	}
	if err != nil {
		return uuid.Nil, err
	}
	cache[key] = u.ID
	return u.ID, nil
}
