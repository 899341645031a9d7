package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"requisition-backend/internal/events"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

// MovementInput is one ledger line to record.
type MovementInput struct {
	StoreID    uuid.UUID
	MaterialID uuid.UUID
	Type       ledger.MovementType
	Direction  ledger.Direction // ADJUSTMENT only
	Source     ledger.SourceRef
	Qty        decimal.Decimal
	UnitPrice  decimal.NullDecimal
	Notes      string
	Actor      uuid.UUID
}

type AdjustStockRequest struct {
	StoreID    string          `json:"store_id" binding:"required,uuid"`
	MaterialID string          `json:"material_id" binding:"required,uuid"`
	Direction  string          `json:"direction" binding:"required,adjustment_direction"`
	Qty        decimal.Decimal `json:"qty" binding:"decimal_gt0"`
	Reason     string          `json:"reason" binding:"required,max=500"`
}

type StockQuery struct {
	StoreID    string
	MaterialID string
	Search     string
	LowOnly    bool
	Page       int
	Limit      int
}

type MovementQuery struct {
	StoreID    string
	MaterialID string
	Type       string
	SourceType string
	SourceID   string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

type AdjustmentResponse struct {
	Adjustment *model.StockAdjustment `json:"adjustment"`
	Movement   *model.StockMovement   `json:"movement"`
}

// ReconciliationRow is a pair whose balance disagrees with its ledger.
type ReconciliationRow struct {
	StoreID    uuid.UUID `json:"store_id"`
	MaterialID uuid.UUID `json:"material_id"`
	ledger.Discrepancy
}

type ReconciliationReport struct {
	Checked       int                 `json:"checked"`
	Discrepancies []ReconciliationRow `json:"discrepancies"`
}

// --- Ledger writer ---

// ledgerWriter appends movements and keeps Stock in step. Record must run inside a
// transaction; callers publish the returned movements after commit.
type ledgerWriter struct {
	stockRepo    repository.StockRepository
	siteRepo     repository.SiteRepository
	materialRepo repository.MaterialRepository
	policy       ledger.Policy
}

func newLedgerWriter(stockRepo repository.StockRepository, siteRepo repository.SiteRepository, materialRepo repository.MaterialRepository, policy ledger.Policy) *ledgerWriter {
	return &ledgerWriter{stockRepo: stockRepo, siteRepo: siteRepo, materialRepo: materialRepo, policy: policy}
}

func ledgerError(err error) error {
	if errors.Is(err, ledger.ErrNonPositiveQty) {
		return apperror.Validation("quantity must be greater than zero")
	}
	if errors.Is(err, ledger.ErrQtyPrecision) {
		return apperror.Validation("quantity has more than 3 decimal places")
	}
	return apperror.Validation(err.Error())
}

func (w *ledgerWriter) Record(txCtx context.Context, in MovementInput) (*model.StockMovement, error) {
	entry := ledger.Entry{Type: in.Type, Direction: in.Direction, Source: in.Source, Qty: in.Qty}
	if err := entry.Validate(); err != nil {
		return nil, ledgerError(err)
	}

	if _, err := w.siteRepo.FindStore(txCtx, in.StoreID); err != nil {
		return nil, err
	}
	if _, err := w.materialRepo.FindByID(txCtx, in.MaterialID); err != nil {
		return nil, err
	}

	stock, err := w.stockRepo.LockOrCreate(txCtx, in.StoreID, in.MaterialID)
	if err != nil {
		return nil, err
	}

	balance, err := w.policy.Apply(stock.QtyOnHand, entry)
	if errors.Is(err, ledger.ErrInsufficientStock) {
		return nil, apperror.InsufficientStock(in.StoreID, in.MaterialID, stock.QtyOnHand, in.Qty)
	}
	if err != nil {
		return nil, ledgerError(err)
	}

	movement := &model.StockMovement{
		StoreID:      in.StoreID,
		MaterialID:   in.MaterialID,
		MovementType: in.Type,
		SourceType:   in.Source.SourceType(),
		SourceID:     in.Source.SourceID(),
		Qty:          in.Qty,
		UnitPrice:    in.UnitPrice,
		BalanceAfter: balance,
		Notes:        in.Notes,
		CreatedBy:    actorID(in.Actor),
	}
	if in.Type == ledger.MovementAdjustment {
		dir := in.Direction
		movement.Direction = &dir
	}
	if err := w.stockRepo.CreateMovement(txCtx, movement); err != nil {
		return nil, err
	}

	stock.QtyOnHand = balance
	if err := w.stockRepo.Save(txCtx, stock); err != nil {
		return nil, err
	}
	return movement, nil
}

func movementEvents(movements ...*model.StockMovement) []events.Event {
	out := make([]events.Event, 0, len(movements))
	for _, m := range movements {
		out = append(out, events.New(events.StockMovementRecorded, map[string]interface{}{
			"movement_id":   m.ID,
			"store_id":      m.StoreID,
			"material_id":   m.MaterialID,
			"movement_type": m.MovementType,
			"source_type":   m.SourceType,
			"source_id":     m.SourceID,
			"qty":           m.Qty,
			"balance_after": m.BalanceAfter,
		}))
	}
	return out
}

// --- Interface ---

type StockService interface {
	RecordMovement(ctx context.Context, in MovementInput) (*model.StockMovement, error)
	Adjust(ctx context.Context, actor uuid.UUID, req AdjustStockRequest) (*AdjustmentResponse, error)
	ListStock(ctx context.Context, q StockQuery) ([]model.Stock, int64, error)
	ListMovements(ctx context.Context, q MovementQuery) ([]model.StockMovement, int64, error)
	Reconcile(ctx context.Context, storeID, materialID string) (*ReconciliationReport, error)
}

type stockService struct {
	stockRepo repository.StockRepository
	numbers   repository.NumberGenerator
	txManager repository.TransactionManager
	audit     audit
	writer    *ledgerWriter
	publisher events.Publisher
}

func NewStockService(
	stockRepo repository.StockRepository,
	siteRepo repository.SiteRepository,
	materialRepo repository.MaterialRepository,
	auditRepo repository.AuditRepository,
	numbers repository.NumberGenerator,
	txManager repository.TransactionManager,
	policy ledger.Policy,
	publisher events.Publisher,
) StockService {
	return &stockService{
		stockRepo: stockRepo,
		numbers:   numbers,
		txManager: txManager,
		audit:     audit{repo: auditRepo},
		writer:    newLedgerWriter(stockRepo, siteRepo, materialRepo, policy),
		publisher: publisher,
	}
}

// RecordMovement appends one movement and updates the balance atomically. It has no route:
// HTTP callers reach the ledger only through documents (goods receipts, issues,
// adjustments) so every movement points at a row that exists. Seeding tools and
// integration tests use it directly.
func (s *stockService) RecordMovement(ctx context.Context, in MovementInput) (*model.StockMovement, error) {
	var movement *model.StockMovement
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		movement, err = s.writer.Record(txCtx, in)
		if err != nil {
			return err
		}
		return s.audit.log(txCtx, in.Actor, model.ActionRecordMovement, "stock_movement", movement.ID.String(), string(movement.MovementType), map[string]interface{}{
			"store_id":      in.StoreID,
			"material_id":   in.MaterialID,
			"source_type":   movement.SourceType,
			"source_id":     movement.SourceID,
			"qty":           in.Qty,
			"balance_after": movement.BalanceAfter,
		})
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.publisher, movementEvents(movement)...)
	return movement, nil
}

// Adjust creates an adjustment document and its ADJUSTMENT movement.
func (s *stockService) Adjust(ctx context.Context, actor uuid.UUID, req AdjustStockRequest) (*AdjustmentResponse, error) {
	storeID, err := parseID("store_id", req.StoreID)
	if err != nil {
		return nil, err
	}
	materialID, err := parseID("material_id", req.MaterialID)
	if err != nil {
		return nil, err
	}
	dir, err := ledger.ParseDirection(req.Direction)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if err := checkQty("qty", req.Qty); err != nil {
		return nil, err
	}

	res := &AdjustmentResponse{}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.numbers.Next(txCtx, repository.PrefixAdjustment)
		if err != nil {
			return fmt.Errorf("failed to allocate adjustment number: %w", err)
		}
		adj := &model.StockAdjustment{
			Number:     number,
			StoreID:    storeID,
			MaterialID: materialID,
			Direction:  dir,
			Qty:        req.Qty,
			Reason:     req.Reason,
			CreatedBy:  actorID(actor),
		}
		if err := s.stockRepo.CreateAdjustment(txCtx, adj); err != nil {
			return err
		}

		movement, err := s.writer.Record(txCtx, MovementInput{
			StoreID:    storeID,
			MaterialID: materialID,
			Type:       ledger.MovementAdjustment,
			Direction:  dir,
			Source:     ledger.AdjustmentRef{ID: adj.ID},
			Qty:        req.Qty,
			Notes:      req.Reason,
			Actor:      actor,
		})
		if err != nil {
			return err
		}
		if err := s.stockRepo.SetAdjustmentMovement(txCtx, adj.ID, movement.ID); err != nil {
			return err
		}
		adj.MovementID = &movement.ID

		res.Adjustment, res.Movement = adj, movement
		return s.audit.log(txCtx, actor, model.ActionAdjustStock, "stock_adjustment", adj.ID.String(), adj.Number, map[string]interface{}{
			"store_id":      storeID,
			"material_id":   materialID,
			"direction":     dir,
			"qty":           req.Qty,
			"reason":        req.Reason,
			"balance_after": movement.BalanceAfter,
		})
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.publisher, movementEvents(res.Movement)...)
	return res, nil
}

func (s *stockService) ListStock(ctx context.Context, q StockQuery) ([]model.Stock, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	storeID, err := parseOptionalID("store_id", q.StoreID)
	if err != nil {
		return nil, 0, err
	}
	materialID, err := parseOptionalID("material_id", q.MaterialID)
	if err != nil {
		return nil, 0, err
	}
	return s.stockRepo.List(ctx, repository.StockFilter{
		StoreID:    storeID,
		MaterialID: materialID,
		Search:     q.Search,
		LowOnly:    q.LowOnly,
	}, page, limit)
}

func (q MovementQuery) filter() (repository.MovementFilter, error) {
	f := repository.MovementFilter{From: q.From, To: q.To}
	var err error
	if f.StoreID, err = parseOptionalID("store_id", q.StoreID); err != nil {
		return f, err
	}
	if f.MaterialID, err = parseOptionalID("material_id", q.MaterialID); err != nil {
		return f, err
	}
	if f.SourceID, err = parseOptionalID("source_id", q.SourceID); err != nil {
		return f, err
	}
	if q.Type != "" {
		t, err := ledger.ParseMovementType(q.Type)
		if err != nil {
			return f, apperror.Validation(err.Error())
		}
		f.Type = t
	}
	if q.SourceType != "" {
		st := ledger.SourceType(q.SourceType)
		if !st.Valid() {
			return f, apperror.Validationf("unknown source type %q", q.SourceType)
		}
		f.SourceType = st
	}
	return f, nil
}

func (s *stockService) ListMovements(ctx context.Context, q MovementQuery) ([]model.StockMovement, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	f, err := q.filter()
	if err != nil {
		return nil, 0, err
	}
	return s.stockRepo.ListMovements(ctx, f, page, limit)
}

// Reconcile compares every balance with the signed sum of its movements.
func (s *stockService) Reconcile(ctx context.Context, storeID, materialID string) (*ReconciliationReport, error) {
	sid, err := parseOptionalID("store_id", storeID)
	if err != nil {
		return nil, err
	}
	mid, err := parseOptionalID("material_id", materialID)
	if err != nil {
		return nil, err
	}
	sums, err := s.stockRepo.LedgerSums(ctx, sid)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{Discrepancies: []ReconciliationRow{}}
	for _, row := range sums {
		if mid != nil && row.MaterialID != *mid {
			continue
		}
		report.Checked++
		if d, ok := ledger.Reconcile(row.QtyOnHand, row.LedgerSum); !ok {
			report.Discrepancies = append(report.Discrepancies, ReconciliationRow{
				StoreID:     row.StoreID,
				MaterialID:  row.MaterialID,
				Discrepancy: d,
			})
		}
	}
	return report, nil
}
