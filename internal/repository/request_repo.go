package repository

import (
	"context"
	"time"

	"requisition-backend/internal/model"
	"requisition-backend/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows a request listing. Zero values are ignored.
type RequestFilter struct {
	Status      workflow.Status
	SiteID      *uuid.UUID
	StoreID     *uuid.UUID
	RequestedBy *uuid.UUID
	Search      string
	From        *time.Time
	To          *time.Time
}

// StatusCount is one row of a per-status aggregate.
type StatusCount struct {
	Status workflow.Status `json:"status"`
	Count  int64           `json:"count"`
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindItemByID(ctx context.Context, id uuid.UUID) (*model.RequestItem, error)
	List(ctx context.Context, filter RequestFilter, page, limit int) ([]model.Request, int64, error)
	ListForExport(ctx context.Context, filter RequestFilter) ([]model.Request, error)
	Update(ctx context.Context, req *model.Request) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status workflow.Status, at time.Time) error
	SaveItem(ctx context.Context, item *model.RequestItem) error
	ReplaceItems(ctx context.Context, requestID uuid.UUID, items []model.RequestItem) error
	CreateApproval(ctx context.Context, a *model.Approval) error
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return translate(GetDB(ctx, r.db).Omit("Site", "Store", "Requester", "Approvals", "Items.Material", "Items.Unit").Create(req).Error)
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	err := GetDB(ctx, r.db).
		Preload("Site").
		Preload("Store").
		Preload("Requester").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Items.Material").
		Preload("Items.Unit").
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Approvals.Reviewer").
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "request", id)
	}
	return &req, nil
}

// FindByIDForUpdate locks the request row until the surrounding transaction ends and
// loads its items. Every status change and issuance goes through this lock.
func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	db := GetDB(ctx, r.db)
	var req model.Request
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "request", id)
	}
	if err := db.Where("request_id = ?", id).Order("created_at asc").Find(&req.Items).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindItemByID(ctx context.Context, id uuid.UUID) (*model.RequestItem, error) {
	var item model.RequestItem
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "request item", id)
	}
	return &item, nil
}

func (r *requestRepository) filtered(ctx context.Context, filter RequestFilter) *gorm.DB {
	db := GetDB(ctx, r.db).Model(&model.Request{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.SiteID != nil {
		db = db.Where("site_id = ?", *filter.SiteID)
	}
	if filter.StoreID != nil {
		db = db.Where("store_id = ?", *filter.StoreID)
	}
	if filter.RequestedBy != nil {
		db = db.Where("requested_by = ?", *filter.RequestedBy)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("code ILIKE ? OR purpose ILIKE ?", like, like)
	}
	if filter.From != nil {
		db = db.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("created_at <= ?", *filter.To)
	}
	return db
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter, page, limit int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	db := r.filtered(ctx, filter)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Site").Preload("Store").Preload("Requester").
		Order("created_at desc").Offset(offset).Limit(limit).Find(&requests).Error; err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// ListForExport returns every matching request with its lines, newest first.
func (r *requestRepository) ListForExport(ctx context.Context, filter RequestFilter) ([]model.Request, error) {
	var requests []model.Request
	err := r.filtered(ctx, filter).
		Preload("Site").Preload("Store").Preload("Requester").
		Preload("Items").Preload("Items.Material").Preload("Items.Unit").
		Order("created_at desc").Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) Update(ctx context.Context, req *model.Request) error {
	return translate(GetDB(ctx, r.db).
		Omit("Site", "Store", "Requester", "Items", "Approvals").
		Save(req).Error)
}

// UpdateStatus stamps submitted_at or closed_at alongside the status when relevant.
func (r *requestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status workflow.Status, at time.Time) error {
	updates := map[string]interface{}{"status": status, "updated_at": at}
	switch status {
	case workflow.StatusSubmitted:
		updates["submitted_at"] = at
	case workflow.StatusClosed:
		updates["closed_at"] = at
	}
	res := GetDB(ctx, r.db).Model(&model.Request{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "request", id)
	}
	return nil
}

func (r *requestRepository) SaveItem(ctx context.Context, item *model.RequestItem) error {
	return translate(GetDB(ctx, r.db).Omit("Material", "Unit").Save(item).Error)
}

// ReplaceItems drops the current lines of a request and inserts items in their place.
func (r *requestRepository) ReplaceItems(ctx context.Context, requestID uuid.UUID, items []model.RequestItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", requestID).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].RequestID = requestID
	}
	return translate(db.Omit("Material", "Unit").Create(&items).Error)
}

func (r *requestRepository) CreateApproval(ctx context.Context, a *model.Approval) error {
	return translate(GetDB(ctx, r.db).Omit("Reviewer").Create(a).Error)
}

func (r *requestRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := GetDB(ctx, r.db).Model(&model.Request{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
