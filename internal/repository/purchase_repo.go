package repository

import (
	"context"

	"requisition-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseFilter narrows a purchase order or goods receipt listing.
type PurchaseFilter struct {
	StoreID *uuid.UUID
	Status  string
	Search  string
}

type PurchaseRepository interface {
	CreateOrder(ctx context.Context, po *model.PurchaseOrder) error
	FindOrder(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	ListOrders(ctx context.Context, filter PurchaseFilter, page, limit int) ([]model.PurchaseOrder, int64, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveOrderItem(ctx context.Context, item *model.PurchaseOrderItem) error
	CountOpenOrders(ctx context.Context) (int64, error)

	CreateReceipt(ctx context.Context, grn *model.GoodsReceipt) error
	FindReceipt(ctx context.Context, id uuid.UUID) (*model.GoodsReceipt, error)
	ListReceipts(ctx context.Context, filter PurchaseFilter, page, limit int) ([]model.GoodsReceipt, int64, error)
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) CreateOrder(ctx context.Context, po *model.PurchaseOrder) error {
	return translate(GetDB(ctx, r.db).Omit("Store", "Supplier", "Items.Material").Create(po).Error)
}

func (r *purchaseRepository) FindOrder(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	err := GetDB(ctx, r.db).
		Preload("Store").
		Preload("Supplier").
		Preload("Items.Material.Unit").
		First(&po, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	return &po, nil
}

// FindOrderForUpdate locks the order header; its items are loaded under the same lock.
func (r *purchaseRepository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	db := GetDB(ctx, r.db)
	var po model.PurchaseOrder
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&po, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	if err := db.Where("purchase_order_id = ?", id).Find(&po.Items).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *purchaseRepository) ListOrders(ctx context.Context, filter PurchaseFilter, page, limit int) ([]model.PurchaseOrder, int64, error) {
	var orders []model.PurchaseOrder
	var total int64

	db := GetDB(ctx, r.db).Model(&model.PurchaseOrder{})
	if filter.StoreID != nil {
		db = db.Where("store_id = ?", *filter.StoreID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("number ILIKE ? OR supplier_name ILIKE ?", like, like)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Store").Preload("Items").
		Order("created_at desc").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *purchaseRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *purchaseRepository) SaveOrderItem(ctx context.Context, item *model.PurchaseOrderItem) error {
	return translate(GetDB(ctx, r.db).Omit("Material").Save(item).Error)
}

func (r *purchaseRepository) CountOpenOrders(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).
		Where("status IN ?", []string{model.POStatusOpen, model.POStatusPartiallyReceived}).
		Count(&n).Error
	return n, err
}

// CreateReceipt inserts the GRN with its lines.
func (r *purchaseRepository) CreateReceipt(ctx context.Context, grn *model.GoodsReceipt) error {
	return translate(GetDB(ctx, r.db).Omit("PurchaseOrder").Create(grn).Error)
}

func (r *purchaseRepository) FindReceipt(ctx context.Context, id uuid.UUID) (*model.GoodsReceipt, error) {
	var grn model.GoodsReceipt
	if err := GetDB(ctx, r.db).Preload("PurchaseOrder").Preload("Items").First(&grn, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "goods receipt", id)
	}
	return &grn, nil
}

func (r *purchaseRepository) ListReceipts(ctx context.Context, filter PurchaseFilter, page, limit int) ([]model.GoodsReceipt, int64, error) {
	var receipts []model.GoodsReceipt
	var total int64

	db := GetDB(ctx, r.db).Model(&model.GoodsReceipt{})
	if filter.StoreID != nil {
		db = db.Where("store_id = ?", *filter.StoreID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("number ILIKE ? OR delivery_note ILIKE ?", like, like)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("PurchaseOrder").Preload("Items").
		Order("created_at desc").Offset(offset).Limit(limit).Find(&receipts).Error; err != nil {
		return nil, 0, err
	}
	return receipts, total, nil
}
