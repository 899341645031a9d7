package repository

import (
	"context"

	"requisition-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SiteRepository covers sites and the stores that belong to them.
type SiteRepository interface {
	CreateSite(ctx context.Context, site *model.Site) error
	UpdateSite(ctx context.Context, site *model.Site) error
	DeleteSite(ctx context.Context, id uuid.UUID) error
	FindSite(ctx context.Context, id uuid.UUID) (*model.Site, error)
	ListSites(ctx context.Context, search string) ([]model.Site, error)

	CreateStore(ctx context.Context, store *model.Store) error
	UpdateStore(ctx context.Context, store *model.Store) error
	DeleteStore(ctx context.Context, id uuid.UUID) error
	FindStore(ctx context.Context, id uuid.UUID) (*model.Store, error)
	ListStores(ctx context.Context, siteID *uuid.UUID) ([]model.Store, error)
}

type siteRepository struct {
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepository{db: db}
}

func (r *siteRepository) CreateSite(ctx context.Context, site *model.Site) error {
	return translate(GetDB(ctx, r.db).Omit("Stores").Create(site).Error)
}

func (r *siteRepository) UpdateSite(ctx context.Context, site *model.Site) error {
	return translate(GetDB(ctx, r.db).Omit("Stores").Save(site).Error)
}

func (r *siteRepository) DeleteSite(ctx context.Context, id uuid.UUID) error {
	return translate(GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Site{}).Error)
}

func (r *siteRepository) FindSite(ctx context.Context, id uuid.UUID) (*model.Site, error) {
	var site model.Site
	if err := GetDB(ctx, r.db).Preload("Stores").First(&site, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "site", id)
	}
	return &site, nil
}

func (r *siteRepository) ListSites(ctx context.Context, search string) ([]model.Site, error) {
	var sites []model.Site
	db := GetDB(ctx, r.db)
	if search != "" {
		like := "%" + search + "%"
		db = db.Where("name ILIKE ? OR code ILIKE ?", like, like)
	}
	if err := db.Preload("Stores").Order("code asc").Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

func (r *siteRepository) CreateStore(ctx context.Context, store *model.Store) error {
	return translate(GetDB(ctx, r.db).Omit("Site", "Keeper").Create(store).Error)
}

func (r *siteRepository) UpdateStore(ctx context.Context, store *model.Store) error {
	return translate(GetDB(ctx, r.db).Omit("Site", "Keeper").Save(store).Error)
}

func (r *siteRepository) DeleteStore(ctx context.Context, id uuid.UUID) error {
	return translate(GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Store{}).Error)
}

func (r *siteRepository) FindStore(ctx context.Context, id uuid.UUID) (*model.Store, error) {
	var store model.Store
	if err := GetDB(ctx, r.db).Preload("Site").First(&store, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "store", id)
	}
	return &store, nil
}

func (r *siteRepository) ListStores(ctx context.Context, siteID *uuid.UUID) ([]model.Store, error) {
	var stores []model.Store
	db := GetDB(ctx, r.db).Preload("Site")
	if siteID != nil {
		db = db.Where("site_id = ?", *siteID)
	}
	if err := db.Order("code asc").Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}
