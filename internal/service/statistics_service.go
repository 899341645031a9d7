package service

import (
	"context"
	"time"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/internal/workflow"
	"requisition-backend/pkg/apperror"

	"go.uber.org/zap"
)

const topMaterialsLimit = 5

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error)
}

type statisticsService struct {
	stats        repository.StatisticsRepository
	requestRepo  repository.RequestRepository
	stockRepo    repository.StockRepository
	purchaseRepo repository.PurchaseRepository
}

func NewStatisticsService(
	stats repository.StatisticsRepository,
	requestRepo repository.RequestRepository,
	stockRepo repository.StockRepository,
	purchaseRepo repository.PurchaseRepository,
) StatisticsService {
	return &statisticsService{stats: stats, requestRepo: requestRepo, stockRepo: stockRepo, purchaseRepo: purchaseRepo}
}

// GetStatistics builds the dashboard summary: request queue sizes, stock alerts and
// ledger volume within the range.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error) {
	var response model.StatisticsResponse
	if endDate.Before(startDate) {
		return response, apperror.Validation("end_date must not be before start_date")
	}
	response.TimeRangeStartDate = startDate
	response.TimeRangeEndDate = endDate

	counts, err := s.requestRepo.CountByStatus(ctx)
	if err != nil {
		logger.Error("[GetStatistics] count requests", zap.Error(err))
		return response, err
	}
	response.RequestsByStatus = make(map[string]int64, len(counts))
	for _, st := range workflow.Statuses() {
		response.RequestsByStatus[string(st)] = 0
	}
	for _, c := range counts {
		response.RequestsByStatus[string(c.Status)] = c.Count
		switch {
		case c.Status == workflow.StatusWaitingPadiriReview:
			response.AwaitingPadiri += c.Count
		case c.Status.InReview():
			response.AwaitingDSE += c.Count
		case c.Status.Issuable():
			response.ReadyToIssue += c.Count
		}
	}

	if response.LowStockItems, err = s.stockRepo.CountLow(ctx); err != nil {
		logger.Error("[GetStatistics] count low stock", zap.Error(err))
		return response, err
	}
	if response.OpenPurchaseOrders, err = s.purchaseRepo.CountOpenOrders(ctx); err != nil {
		logger.Error("[GetStatistics] count open purchase orders", zap.Error(err))
		return response, err
	}

	if response.MovementTotals, err = s.stats.GetMovementTotals(ctx, startDate, endDate); err != nil {
		return response, err
	}
	if response.TopIssuedItems, err = s.stats.GetTopMaterials(ctx, ledger.MovementOut, startDate, endDate, topMaterialsLimit); err != nil {
		return response, err
	}
	if response.TopReceivedItems, err = s.stats.GetTopMaterials(ctx, ledger.MovementIn, startDate, endDate, topMaterialsLimit); err != nil {
		return response, err
	}

	return response, nil
}
