package repository

import (
	"context"

	"requisition-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaterialFilter narrows a material listing.
type MaterialFilter struct {
	Search     string
	CategoryID *uuid.UUID
}

// MaterialRepository covers the catalog: categories, units and materials.
type MaterialRepository interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	FindCategory(ctx context.Context, id uuid.UUID) (*model.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	CreateUnit(ctx context.Context, u *model.Unit) error
	DeleteUnit(ctx context.Context, id uuid.UUID) error
	FindUnit(ctx context.Context, id uuid.UUID) (*model.Unit, error)
	FindUnitByCode(ctx context.Context, code string) (*model.Unit, error)
	ListUnits(ctx context.Context) ([]model.Unit, error)

	Create(ctx context.Context, m *model.Material) error
	Update(ctx context.Context, m *model.Material) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Material, error)
	FindByCode(ctx context.Context, code string) (*model.Material, error)
	List(ctx context.Context, filter MaterialFilter, page, limit int) ([]model.Material, int64, error)
}

type materialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) CreateCategory(ctx context.Context, c *model.Category) error {
	return translate(GetDB(ctx, r.db).Create(c).Error)
}

func (r *materialRepository) UpdateCategory(ctx context.Context, c *model.Category) error {
	return translate(GetDB(ctx, r.db).Save(c).Error)
}

func (r *materialRepository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return translate(GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Category{}).Error)
}

func (r *materialRepository) FindCategory(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	var c model.Category
	if err := GetDB(ctx, r.db).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "category", id)
	}
	return &c, nil
}

func (r *materialRepository) FindCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	if err := GetDB(ctx, r.db).First(&c, "LOWER(name) = LOWER(?)", name).Error; err != nil {
		return nil, notFound(err, "category", name)
	}
	return &c, nil
}

func (r *materialRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	if err := GetDB(ctx, r.db).Order("name asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *materialRepository) CreateUnit(ctx context.Context, u *model.Unit) error {
	return translate(GetDB(ctx, r.db).Create(u).Error)
}

func (r *materialRepository) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	return translate(GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Unit{}).Error)
}

func (r *materialRepository) FindUnit(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	var u model.Unit
	if err := GetDB(ctx, r.db).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "unit", id)
	}
	return &u, nil
}

func (r *materialRepository) FindUnitByCode(ctx context.Context, code string) (*model.Unit, error) {
	var u model.Unit
	if err := GetDB(ctx, r.db).First(&u, "LOWER(code) = LOWER(?)", code).Error; err != nil {
		return nil, notFound(err, "unit", code)
	}
	return &u, nil
}

func (r *materialRepository) ListUnits(ctx context.Context) ([]model.Unit, error) {
	var out []model.Unit
	if err := GetDB(ctx, r.db).Order("code asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *materialRepository) Create(ctx context.Context, m *model.Material) error {
	return translate(GetDB(ctx, r.db).Omit("Category", "Unit").Create(m).Error)
}

func (r *materialRepository) Update(ctx context.Context, m *model.Material) error {
	return translate(GetDB(ctx, r.db).Omit("Category", "Unit").Save(m).Error)
}

func (r *materialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Material{}).Error
}

func (r *materialRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Material, error) {
	var m model.Material
	if err := GetDB(ctx, r.db).Preload("Category").Preload("Unit").First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "material", id)
	}
	return &m, nil
}

func (r *materialRepository) FindByCode(ctx context.Context, code string) (*model.Material, error) {
	var m model.Material
	if err := GetDB(ctx, r.db).First(&m, "code = ?", code).Error; err != nil {
		return nil, notFound(err, "material", code)
	}
	return &m, nil
}

func (r *materialRepository) List(ctx context.Context, filter MaterialFilter, page, limit int) ([]model.Material, int64, error) {
	var materials []model.Material
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Material{})
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("name ILIKE ? OR code ILIKE ?", like, like)
	}
	if filter.CategoryID != nil {
		db = db.Where("category_id = ?", *filter.CategoryID)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Category").Preload("Unit").
		Order("code asc").Offset(offset).Limit(limit).Find(&materials).Error; err != nil {
		return nil, 0, err
	}
	return materials, total, nil
}
