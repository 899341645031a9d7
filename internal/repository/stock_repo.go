package repository

import (
	"context"
	"time"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockFilter narrows a balance listing.
type StockFilter struct {
	StoreID    *uuid.UUID
	MaterialID *uuid.UUID
	Search     string
	LowOnly    bool
}

// MovementFilter narrows a ledger listing.
type MovementFilter struct {
	StoreID    *uuid.UUID
	MaterialID *uuid.UUID
	Type       ledger.MovementType
	SourceType ledger.SourceType
	SourceID   *uuid.UUID
	From       *time.Time
	To         *time.Time
}

// LedgerSum is the signed movement total for one store/material pair next to its balance.
type LedgerSum struct {
	StoreID    uuid.UUID       `json:"store_id"`
	MaterialID uuid.UUID       `json:"material_id"`
	QtyOnHand  decimal.Decimal `json:"qty_on_hand"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
}

type StockRepository interface {
	LockOrCreate(ctx context.Context, storeID, materialID uuid.UUID) (*model.Stock, error)
	Save(ctx context.Context, stock *model.Stock) error
	Find(ctx context.Context, storeID, materialID uuid.UUID) (*model.Stock, error)
	List(ctx context.Context, filter StockFilter, page, limit int) ([]model.Stock, int64, error)
	ListAll(ctx context.Context, filter StockFilter) ([]model.Stock, error)
	CountLow(ctx context.Context) (int64, error)

	CreateMovement(ctx context.Context, m *model.StockMovement) error
	ListMovements(ctx context.Context, filter MovementFilter, page, limit int) ([]model.StockMovement, int64, error)
	ListAllMovements(ctx context.Context, filter MovementFilter) ([]model.StockMovement, error)
	LedgerSums(ctx context.Context, storeID *uuid.UUID) ([]LedgerSum, error)

	CreateAdjustment(ctx context.Context, adj *model.StockAdjustment) error
	SetAdjustmentMovement(ctx context.Context, adjustmentID, movementID uuid.UUID) error
}

type stockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

// LockOrCreate makes sure the balance row exists and holds FOR UPDATE on it until the
// surrounding transaction ends. Must be called inside RunInTx.
func (r *stockRepository) LockOrCreate(ctx context.Context, storeID, materialID uuid.UUID) (*model.Stock, error) {
	db := GetDB(ctx, r.db)
	seed := model.Stock{StoreID: storeID, MaterialID: materialID, QtyOnHand: decimal.Zero}
	err := db.Omit("Store", "Material").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "material_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return nil, translate(err)
	}

	var stock model.Stock
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("store_id = ? AND material_id = ?", storeID, materialID).
		First(&stock).Error
	if err != nil {
		return nil, notFound(err, "stock", materialID)
	}
	return &stock, nil
}

func (r *stockRepository) Save(ctx context.Context, stock *model.Stock) error {
	return GetDB(ctx, r.db).Model(stock).Updates(map[string]interface{}{
		"qty_on_hand": stock.QtyOnHand,
		"updated_at":  time.Now(),
	}).Error
}

func (r *stockRepository) Find(ctx context.Context, storeID, materialID uuid.UUID) (*model.Stock, error) {
	var stock model.Stock
	err := GetDB(ctx, r.db).
		Preload("Store").Preload("Material.Unit").
		Where("store_id = ? AND material_id = ?", storeID, materialID).
		First(&stock).Error
	if err != nil {
		return nil, notFound(err, "stock", materialID)
	}
	return &stock, nil
}

func (r *stockRepository) filtered(ctx context.Context, filter StockFilter) *gorm.DB {
	db := GetDB(ctx, r.db).Model(&model.Stock{}).
		Joins("JOIN materials ON materials.id = stock.material_id AND materials.deleted_at IS NULL")
	if filter.StoreID != nil {
		db = db.Where("stock.store_id = ?", *filter.StoreID)
	}
	if filter.MaterialID != nil {
		db = db.Where("stock.material_id = ?", *filter.MaterialID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		db = db.Where("materials.name ILIKE ? OR materials.code ILIKE ?", like, like)
	}
	if filter.LowOnly {
		db = db.Where("stock.qty_on_hand <= materials.reorder_level")
	}
	return db
}

func (r *stockRepository) List(ctx context.Context, filter StockFilter, page, limit int) ([]model.Stock, int64, error) {
	var rows []model.Stock
	var total int64

	db := r.filtered(ctx, filter)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Store").Preload("Material.Unit").
		Order("materials.code asc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *stockRepository) ListAll(ctx context.Context, filter StockFilter) ([]model.Stock, error) {
	var rows []model.Stock
	if err := r.filtered(ctx, filter).
		Preload("Store").Preload("Material.Unit").Preload("Material.Category").
		Order("materials.code asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountLow counts balances at or below their material's reorder level.
func (r *stockRepository) CountLow(ctx context.Context) (int64, error) {
	var n int64
	err := r.filtered(ctx, StockFilter{LowOnly: true}).Count(&n).Error
	return n, err
}

func (r *stockRepository) CreateMovement(ctx context.Context, m *model.StockMovement) error {
	return translate(GetDB(ctx, r.db).Omit("Store", "Material", "Creator").Create(m).Error)
}

func (r *stockRepository) filteredMovements(ctx context.Context, filter MovementFilter) *gorm.DB {
	db := GetDB(ctx, r.db).Model(&model.StockMovement{})
	if filter.StoreID != nil {
		db = db.Where("store_id = ?", *filter.StoreID)
	}
	if filter.MaterialID != nil {
		db = db.Where("material_id = ?", *filter.MaterialID)
	}
	if filter.Type != "" {
		db = db.Where("movement_type = ?", filter.Type)
	}
	if filter.SourceType != "" {
		db = db.Where("source_type = ?", filter.SourceType)
	}
	if filter.SourceID != nil {
		db = db.Where("source_id = ?", *filter.SourceID)
	}
	if filter.From != nil {
		db = db.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("created_at <= ?", *filter.To)
	}
	return db
}

func (r *stockRepository) ListMovements(ctx context.Context, filter MovementFilter, page, limit int) ([]model.StockMovement, int64, error) {
	var rows []model.StockMovement
	var total int64

	db := r.filteredMovements(ctx, filter)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Store").Preload("Material").Preload("Creator").
		Order("created_at desc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *stockRepository) ListAllMovements(ctx context.Context, filter MovementFilter) ([]model.StockMovement, error) {
	var rows []model.StockMovement
	if err := r.filteredMovements(ctx, filter).
		Preload("Store").Preload("Material").Preload("Creator").
		Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LedgerSums aggregates the ledger per pair in SQL with the same sign rules as ledger.Entry.Delta.
func (r *stockRepository) LedgerSums(ctx context.Context, storeID *uuid.UUID) ([]LedgerSum, error) {
	var rows []LedgerSum
	db := GetDB(ctx, r.db).Table("stock").
		Select(`stock.store_id, stock.material_id, stock.qty_on_hand,
			COALESCE(SUM(CASE
				WHEN m.movement_type = 'IN' THEN m.qty
				WHEN m.movement_type = 'OUT' THEN -m.qty
				WHEN m.direction = 'INCREASE' THEN m.qty
				ELSE -m.qty
			END), 0) AS ledger_sum`).
		Joins("LEFT JOIN stock_movements m ON m.store_id = stock.store_id AND m.material_id = stock.material_id")
	if storeID != nil {
		db = db.Where("stock.store_id = ?", *storeID)
	}
	err := db.Group("stock.store_id, stock.material_id, stock.qty_on_hand").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *stockRepository) CreateAdjustment(ctx context.Context, adj *model.StockAdjustment) error {
	return translate(GetDB(ctx, r.db).Create(adj).Error)
}

func (r *stockRepository) SetAdjustmentMovement(ctx context.Context, adjustmentID, movementID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.StockAdjustment{}).
		Where("id = ?", adjustmentID).
		Update("movement_id", movementID).Error
}
