package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"requisition-backend/internal/events"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type PurchaseOrderItemInput struct {
	MaterialID string          `json:"material_id" binding:"required,uuid"`
	Qty        decimal.Decimal `json:"qty" binding:"decimal_gt0"`
	UnitPrice  decimal.Decimal `json:"unit_price" binding:"decimal_price"`
}

type CreatePurchaseOrderRequest struct {
	SupplierID   string                   `json:"supplier_id" binding:"omitempty,uuid"`
	SupplierName string                   `json:"supplier_name" binding:"required_without=SupplierID,max=255"`
	StoreID      string                   `json:"store_id" binding:"required,uuid"`
	Note         string                   `json:"note" binding:"max=1000"`
	ExpectedAt   *time.Time               `json:"expected_at"`
	Items        []PurchaseOrderItemInput `json:"items" binding:"required,min=1,dive"`
}

type ReceiptLineInput struct {
	PurchaseOrderItemID string          `json:"purchase_order_item_id" binding:"required,uuid"`
	Qty                 decimal.Decimal `json:"qty" binding:"decimal_gt0"`
}

type CreateGoodsReceiptRequest struct {
	DeliveryNote string             `json:"delivery_note" binding:"max=100"`
	Note         string             `json:"note" binding:"max=1000"`
	Items        []ReceiptLineInput `json:"items" binding:"required,min=1,dive"`
}

type PurchaseQuery struct {
	StoreID string
	Status  string
	Search  string
	Page    int
	Limit   int
}

func (q PurchaseQuery) filter() (repository.PurchaseFilter, error) {
	storeID, err := parseOptionalID("store_id", q.StoreID)
	if err != nil {
		return repository.PurchaseFilter{}, err
	}
	switch q.Status {
	case "", model.POStatusOpen, model.POStatusPartiallyReceived, model.POStatusReceived, model.POStatusCancelled:
	default:
		return repository.PurchaseFilter{}, apperror.Validationf("unknown purchase order status %q", q.Status)
	}
	return repository.PurchaseFilter{StoreID: storeID, Status: q.Status, Search: q.Search}, nil
}

type GoodsReceiptResponse struct {
	Receipt *model.GoodsReceipt  `json:"receipt"`
	Order   *model.PurchaseOrder `json:"purchase_order"`
}

// --- Interface ---

type PurchaseService interface {
	CreateOrder(ctx context.Context, actor uuid.UUID, req CreatePurchaseOrderRequest) (*model.PurchaseOrder, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	ListOrders(ctx context.Context, q PurchaseQuery) ([]model.PurchaseOrder, int64, error)
	CancelOrder(ctx context.Context, actor, id uuid.UUID) (*model.PurchaseOrder, error)

	ReceiveGoods(ctx context.Context, actor, orderID uuid.UUID, req CreateGoodsReceiptRequest) (*GoodsReceiptResponse, error)
	GetReceipt(ctx context.Context, id uuid.UUID) (*model.GoodsReceipt, error)
	ListReceipts(ctx context.Context, q PurchaseQuery) ([]model.GoodsReceipt, int64, error)
}

type purchaseService struct {
	repo         repository.PurchaseRepository
	suppliers    repository.SupplierRepository
	siteRepo     repository.SiteRepository
	materialRepo repository.MaterialRepository
	numbers      repository.NumberGenerator
	txManager    repository.TransactionManager
	audit        audit
	writer       *ledgerWriter
	publisher    events.Publisher
}

func NewPurchaseService(
	repo repository.PurchaseRepository,
	suppliers repository.SupplierRepository,
	siteRepo repository.SiteRepository,
	materialRepo repository.MaterialRepository,
	stockRepo repository.StockRepository,
	auditRepo repository.AuditRepository,
	numbers repository.NumberGenerator,
	txManager repository.TransactionManager,
	policy ledger.Policy,
	publisher events.Publisher,
) PurchaseService {
	return &purchaseService{
		repo:         repo,
		suppliers:    suppliers,
		siteRepo:     siteRepo,
		materialRepo: materialRepo,
		numbers:      numbers,
		txManager:    txManager,
		audit:        audit{repo: auditRepo},
		writer:       newLedgerWriter(stockRepo, siteRepo, materialRepo, policy),
		publisher:    publisher,
	}
}

func (s *purchaseService) CreateOrder(ctx context.Context, actor uuid.UUID, req CreatePurchaseOrderRequest) (*model.PurchaseOrder, error) {
	storeID, err := parseID("store_id", req.StoreID)
	if err != nil {
		return nil, err
	}
	supplierID, err := parseOptionalID("supplier_id", req.SupplierID)
	if err != nil {
		return nil, err
	}
	if supplierID == nil && strings.TrimSpace(req.SupplierName) == "" {
		return nil, apperror.Validation("supplier_id or supplier_name is required")
	}
	if len(req.Items) == 0 {
		return nil, apperror.Validation("a purchase order needs at least one item")
	}

	var po *model.PurchaseOrder
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.siteRepo.FindStore(txCtx, storeID); err != nil {
			return err
		}
		supplierName := strings.TrimSpace(req.SupplierName)
		if supplierID != nil {
			supplier, err := s.suppliers.FindByID(txCtx, *supplierID)
			if err != nil {
				return err
			}
			if !supplier.IsActive {
				return apperror.Validation("supplier is inactive").With("supplier_id", supplier.ID)
			}
			supplierName = supplier.Name
		}

		items := make([]model.PurchaseOrderItem, 0, len(req.Items))
		for i, in := range req.Items {
			materialID, err := parseID(fmt.Sprintf("items[%d].material_id", i), in.MaterialID)
			if err != nil {
				return err
			}
			if err := checkQty(fmt.Sprintf("items[%d].qty", i), in.Qty); err != nil {
				return err
			}
			if in.UnitPrice.IsNegative() {
				return apperror.Validationf("items[%d].unit_price cannot be negative", i)
			}
			if !ledger.FitsScale(in.UnitPrice, ledger.PriceScale) {
				return apperror.Validationf("items[%d].unit_price has more than %d decimal places", i, ledger.PriceScale)
			}
			if _, err := s.materialRepo.FindByID(txCtx, materialID); err != nil {
				return err
			}
			items = append(items, model.PurchaseOrderItem{
				MaterialID: materialID,
				QtyOrdered: in.Qty,
				UnitPrice:  in.UnitPrice,
			})
		}

		number, err := s.numbers.Next(txCtx, repository.PrefixPurchaseOrder)
		if err != nil {
			return fmt.Errorf("failed to allocate purchase order number: %w", err)
		}
		po = &model.PurchaseOrder{
			Number:       number,
			SupplierID:   supplierID,
			SupplierName: supplierName,
			StoreID:      storeID,
			Status:       model.POStatusOpen,
			Note:         req.Note,
			ExpectedAt:   req.ExpectedAt,
			CreatedBy:    actorID(actor),
			Items:        items,
		}
		if err := s.repo.CreateOrder(txCtx, po); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionCreatePurchaseOrder, "purchase_order", po.ID.String(), po.Number, map[string]interface{}{
			"supplier": po.SupplierName,
			"store_id": storeID,
			"items":    len(items),
		})
	})
	if err != nil {
		logger.Error("[CreatePurchaseOrder] failed", zap.Error(err))
		return nil, err
	}

	events.PublishAll(ctx, s.publisher, events.New(events.PurchaseOrderCreated, map[string]interface{}{
		"purchase_order_id": po.ID,
		"number":            po.Number,
		"store_id":          po.StoreID,
		"supplier":          po.SupplierName,
	}))
	return po, nil
}

func (s *purchaseService) GetOrder(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	return s.repo.FindOrder(ctx, id)
}

func (s *purchaseService) ListOrders(ctx context.Context, q PurchaseQuery) ([]model.PurchaseOrder, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	f, err := q.filter()
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListOrders(ctx, f, page, limit)
}

// CancelOrder is only possible before anything was received.
func (s *purchaseService) CancelOrder(ctx context.Context, actor, id uuid.UUID) (*model.PurchaseOrder, error) {
	var po *model.PurchaseOrder
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		po, err = s.repo.FindOrderForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if po.Status != model.POStatusOpen {
			return apperror.Conflict("only an open purchase order without receipts can be cancelled").
				With("purchase_order_id", po.ID).
				With("status", po.Status)
		}
		if err := s.repo.UpdateOrderStatus(txCtx, po.ID, model.POStatusCancelled); err != nil {
			return err
		}
		po.Status = model.POStatusCancelled
		return s.audit.log(txCtx, actor, model.ActionCancelPurchaseOrder, "purchase_order", po.ID.String(), po.Number, nil)
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.publisher, events.New(events.PurchaseOrderCancelled, map[string]interface{}{
		"purchase_order_id": po.ID,
		"number":            po.Number,
	}))
	return po, nil
}

// ReceiveGoods books a GRN against the order: one IN movement per line into the
// order's store, then the order status is recomputed from received quantities.
func (s *purchaseService) ReceiveGoods(ctx context.Context, actor, orderID uuid.UUID, req CreateGoodsReceiptRequest) (*GoodsReceiptResponse, error) {
	if len(req.Items) == 0 {
		return nil, apperror.Validation("a goods receipt needs at least one line")
	}
	type parsedLine struct {
		itemID uuid.UUID
		qty    decimal.Decimal
	}
	parsed := make([]parsedLine, 0, len(req.Items))
	for i, in := range req.Items {
		itemID, err := parseID(fmt.Sprintf("items[%d].purchase_order_item_id", i), in.PurchaseOrderItemID)
		if err != nil {
			return nil, err
		}
		if err := checkQty(fmt.Sprintf("items[%d].qty", i), in.Qty); err != nil {
			return nil, err
		}
		parsed = append(parsed, parsedLine{itemID: itemID, qty: in.Qty})
	}

	var (
		po        *model.PurchaseOrder
		grn       *model.GoodsReceipt
		movements []*model.StockMovement
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		movements = nil

		var err error
		po, err = s.repo.FindOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if po.Status == model.POStatusCancelled || po.Status == model.POStatusReceived {
			return apperror.Conflict("purchase order does not accept receipts").
				With("purchase_order_id", po.ID).
				With("status", po.Status)
		}

		byID := make(map[uuid.UUID]*model.PurchaseOrderItem, len(po.Items))
		for i := range po.Items {
			byID[po.Items[i].ID] = &po.Items[i]
		}
		for _, p := range parsed {
			item, ok := byID[p.itemID]
			if !ok {
				return apperror.NotFound("purchase order item", p.itemID).With("purchase_order_id", po.ID)
			}
			if p.qty.GreaterThan(item.Outstanding()) {
				return apperror.Validation("received quantity exceeds the outstanding quantity").
					With("purchase_order_item_id", item.ID).
					With("qty_ordered", item.QtyOrdered.String()).
					With("qty_received", item.QtyReceived.String()).
					With("qty", p.qty.String())
			}
			item.QtyReceived = item.QtyReceived.Add(p.qty)
		}

		number, err := s.numbers.Next(txCtx, repository.PrefixGoodsReceipt)
		if err != nil {
			return fmt.Errorf("failed to allocate goods receipt number: %w", err)
		}
		grn = &model.GoodsReceipt{
			ID:              uuid.New(),
			Number:          number,
			PurchaseOrderID: po.ID,
			StoreID:         po.StoreID,
			ReceivedBy:      actorID(actor),
			DeliveryNote:    req.DeliveryNote,
			Note:            req.Note,
		}

		for _, p := range parsed {
			item := byID[p.itemID]
			movement, err := s.writer.Record(txCtx, MovementInput{
				StoreID:    po.StoreID,
				MaterialID: item.MaterialID,
				Type:       ledger.MovementIn,
				Source:     ledger.GRNRef{ID: grn.ID},
				Qty:        p.qty,
				UnitPrice:  decimal.NewNullDecimal(item.UnitPrice),
				Notes:      po.Number,
				Actor:      actor,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			movementID := movement.ID
			grn.Items = append(grn.Items, model.GoodsReceiptItem{
				GoodsReceiptID:      grn.ID,
				PurchaseOrderItemID: item.ID,
				MaterialID:          item.MaterialID,
				Qty:                 p.qty,
				UnitPrice:           item.UnitPrice,
				MovementID:          &movementID,
			})
		}
		if err := s.repo.CreateReceipt(txCtx, grn); err != nil {
			return err
		}

		for i := range po.Items {
			if err := s.repo.SaveOrderItem(txCtx, &po.Items[i]); err != nil {
				return err
			}
		}
		previous := po.Status
		po.RecomputeStatus()
		if po.Status != previous {
			if err := s.repo.UpdateOrderStatus(txCtx, po.ID, po.Status); err != nil {
				return err
			}
		}

		return s.audit.log(txCtx, actor, model.ActionCreateGoodsReceipt, "goods_receipt", grn.ID.String(), grn.Number, map[string]interface{}{
			"purchase_order": po.Number,
			"lines":          len(grn.Items),
			"po_status":      po.Status,
		})
	})
	if err != nil {
		logger.Error("[ReceiveGoods] failed", zap.String("purchase_order_id", orderID.String()), zap.Error(err))
		return nil, err
	}

	evs := movementEvents(movements...)
	evs = append(evs, events.New(events.GoodsReceiptCreated, map[string]interface{}{
		"goods_receipt_id":  grn.ID,
		"number":            grn.Number,
		"purchase_order_id": po.ID,
		"po_status":         po.Status,
	}))
	events.PublishAll(ctx, s.publisher, evs...)

	return &GoodsReceiptResponse{Receipt: grn, Order: po}, nil
}

func (s *purchaseService) GetReceipt(ctx context.Context, id uuid.UUID) (*model.GoodsReceipt, error) {
	return s.repo.FindReceipt(ctx, id)
}

func (s *purchaseService) ListReceipts(ctx context.Context, q PurchaseQuery) ([]model.GoodsReceipt, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	f, err := q.filter()
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListReceipts(ctx, f, page, limit)
}
