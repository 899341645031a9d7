package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatisticsResponse is the dashboard summary for a time range.
type StatisticsResponse struct {
	RequestsByStatus   map[string]int64  `json:"requests_by_status"`
	AwaitingDSE        int64             `json:"awaiting_dse"`
	AwaitingPadiri     int64             `json:"awaiting_padiri"`
	ReadyToIssue       int64             `json:"ready_to_issue"`
	LowStockItems      int64             `json:"low_stock_items"`
	OpenPurchaseOrders int64             `json:"open_purchase_orders"`
	MovementTotals     []MovementTotal   `json:"movement_totals"`
	TopIssuedItems     []MaterialRanking `json:"top_issued_items"`
	TopReceivedItems   []MaterialRanking `json:"top_received_items"`
	TimeRangeStartDate time.Time         `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time         `json:"time_range_end_date"`
}

// MovementTotal is the ledger volume of one movement type within the range.
type MovementTotal struct {
	MovementType string          `json:"movement_type"`
	Count        int64           `json:"count"`
	TotalQty     decimal.Decimal `json:"total_qty"`
}

// MaterialRanking ranks a material by moved quantity.
type MaterialRanking struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	MaterialCode string          `json:"material_code"`
	TotalQty     decimal.Decimal `json:"total_qty"`
	Movements    int64           `json:"movements"`
}
