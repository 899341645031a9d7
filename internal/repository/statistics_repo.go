package repository

import (
	"context"
	"fmt"
	"time"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"

	"gorm.io/gorm"
)

type StatisticsRepository interface {
	GetMovementTotals(ctx context.Context, start, end time.Time) ([]model.MovementTotal, error)
	GetTopMaterials(ctx context.Context, movementType ledger.MovementType, start, end time.Time, limit int) ([]model.MaterialRanking, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) GetMovementTotals(ctx context.Context, start, end time.Time) ([]model.MovementTotal, error) {
	var totals []model.MovementTotal
	if err := GetDB(ctx, r.db).Table("stock_movements").
		Select("movement_type, COUNT(*) AS count, COALESCE(SUM(qty), 0) AS total_qty").
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("movement_type").
		Order("movement_type").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to query movement totals: %w", err)
	}
	return totals, nil
}

func (r *statisticsRepository) GetTopMaterials(ctx context.Context, movementType ledger.MovementType, start, end time.Time, limit int) ([]model.MaterialRanking, error) {
	var rankings []model.MaterialRanking
	if err := GetDB(ctx, r.db).Table("stock_movements").
		Select("materials.id AS material_id, materials.name AS material_name, materials.code AS material_code, SUM(stock_movements.qty) AS total_qty, COUNT(*) AS movements").
		Joins("JOIN materials ON materials.id = stock_movements.material_id").
		Where("stock_movements.movement_type = ? AND stock_movements.created_at >= ? AND stock_movements.created_at <= ?", movementType, start, end).
		Group("materials.id, materials.name, materials.code").
		Order("total_qty DESC").
		Limit(limit).
		Scan(&rankings).Error; err != nil {
		return nil, fmt.Errorf("failed to query top materials: %w", err)
	}
	return rankings, nil
}
