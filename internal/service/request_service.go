package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"requisition-backend/internal/events"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/internal/workflow"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type RequestItemInput struct {
	MaterialID string          `json:"material_id" binding:"required,uuid"`
	Qty        decimal.Decimal `json:"qty" binding:"decimal_gt0"`
	Note       string          `json:"note" binding:"max=500"`
}

type CreateRequestRequest struct {
	SiteID   string             `json:"site_id" binding:"required,uuid"`
	StoreID  string             `json:"store_id" binding:"required,uuid"`
	Purpose  string             `json:"purpose" binding:"max=1000"`
	NeededBy *time.Time         `json:"needed_by"`
	Items    []RequestItemInput `json:"items" binding:"required,min=1,dive"`
}

type UpdateRequestRequest struct {
	Purpose  string             `json:"purpose" binding:"max=1000"`
	NeededBy *time.Time         `json:"needed_by"`
	Items    []RequestItemInput `json:"items" binding:"required,min=1,dive"`
}

// ApprovedQtyInput overrides the approved quantity of one item on a MODIFIED review.
type ApprovedQtyInput struct {
	RequestItemID string          `json:"request_item_id" binding:"required,uuid"`
	QtyApproved   decimal.Decimal `json:"qty_approved" binding:"decimal_gte0"`
}

type ReviewRequest struct {
	Level   string             `json:"level" binding:"required,review_level"`
	Action  string             `json:"action" binding:"required,review_action"`
	Comment string             `json:"comment" binding:"max=1000"`
	Items   []ApprovedQtyInput `json:"items" binding:"dive"`
}

type IssueLineInput struct {
	RequestItemID string          `json:"request_item_id" binding:"required,uuid"`
	Qty           decimal.Decimal `json:"qty" binding:"decimal_gt0"`
	Note          string          `json:"note" binding:"max=500"`
}

type IssueRequest struct {
	Items []IssueLineInput `json:"items" binding:"required,min=1,dive"`
}

type IssueItemRequest struct {
	Qty  decimal.Decimal `json:"qty" binding:"decimal_gt0"`
	Note string          `json:"note" binding:"max=500"`
}

type ReceiveLineInput struct {
	RequestItemID string          `json:"request_item_id" binding:"required,uuid"`
	Qty           decimal.Decimal `json:"qty" binding:"decimal_gt0"`
}

// ReceiveRequest confirms delivery at the site. Without lines, everything issued and
// not yet received is confirmed.
type ReceiveRequest struct {
	Items []ReceiveLineInput `json:"items" binding:"dive"`
	Note  string             `json:"note" binding:"max=1000"`
}

type RequestQuery struct {
	Status      string
	SiteID      string
	StoreID     string
	RequestedBy string
	Search      string
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}

func (q RequestQuery) filter() (repository.RequestFilter, error) {
	f := repository.RequestFilter{Search: q.Search, From: q.From, To: q.To}
	if q.Status != "" {
		st, err := workflow.ParseStatus(q.Status)
		if err != nil {
			return f, apperror.Validation(err.Error())
		}
		f.Status = st
	}
	var err error
	if f.SiteID, err = parseOptionalID("site_id", q.SiteID); err != nil {
		return f, err
	}
	if f.StoreID, err = parseOptionalID("store_id", q.StoreID); err != nil {
		return f, err
	}
	if f.RequestedBy, err = parseOptionalID("requested_by", q.RequestedBy); err != nil {
		return f, err
	}
	return f, nil
}

// RequestDetail is a request with the moves currently open to it.
type RequestDetail struct {
	*model.Request
	AllowedTransitions []workflow.Transition `json:"allowed_transitions"`
	Issues             []model.Issue         `json:"issues"`
}

type IssueResponse struct {
	Issue   *model.Issue    `json:"issue"`
	Status  workflow.Status `json:"status"`
	Request *model.Request  `json:"request"`
}

// --- Interface ---

type RequestService interface {
	Create(ctx context.Context, actor uuid.UUID, req CreateRequestRequest) (*model.Request, error)
	UpdateDraft(ctx context.Context, actor, id uuid.UUID, req UpdateRequestRequest) (*model.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*RequestDetail, error)
	List(ctx context.Context, q RequestQuery) ([]model.Request, int64, error)
	ListIssues(ctx context.Context, id uuid.UUID) ([]model.Issue, error)

	Submit(ctx context.Context, actor, id uuid.UUID) (*model.Request, error)
	StartReview(ctx context.Context, actor, id uuid.UUID) (*model.Request, error)
	Review(ctx context.Context, reviewer, id uuid.UUID, req ReviewRequest) (*model.Request, error)
	OpenIssue(ctx context.Context, actor, id uuid.UUID) (*model.Request, error)
	IssueItems(ctx context.Context, actor, id uuid.UUID, req IssueRequest) (*IssueResponse, error)
	IssueAgainstItem(ctx context.Context, actor, itemID uuid.UUID, req IssueItemRequest) (*IssueResponse, error)
	Receive(ctx context.Context, actor, id uuid.UUID, req ReceiveRequest) (*model.Request, error)
	Close(ctx context.Context, actor, id uuid.UUID) (*model.Request, error)
}

type requestService struct {
	repo         repository.RequestRepository
	issueRepo    repository.IssueRepository
	userRepo     repository.UserRepository
	siteRepo     repository.SiteRepository
	materialRepo repository.MaterialRepository
	numbers      repository.NumberGenerator
	txManager    repository.TransactionManager
	audit        audit
	writer       *ledgerWriter
	publisher    events.Publisher
	now          func() time.Time
}

func NewRequestService(
	repo repository.RequestRepository,
	issueRepo repository.IssueRepository,
	userRepo repository.UserRepository,
	siteRepo repository.SiteRepository,
	materialRepo repository.MaterialRepository,
	stockRepo repository.StockRepository,
	auditRepo repository.AuditRepository,
	numbers repository.NumberGenerator,
	txManager repository.TransactionManager,
	policy ledger.Policy,
	publisher events.Publisher,
) RequestService {
	return &requestService{
		repo:         repo,
		issueRepo:    issueRepo,
		userRepo:     userRepo,
		siteRepo:     siteRepo,
		materialRepo: materialRepo,
		numbers:      numbers,
		txManager:    txManager,
		audit:        audit{repo: auditRepo},
		writer:       newLedgerWriter(stockRepo, siteRepo, materialRepo, policy),
		publisher:    publisher,
		now:          time.Now,
	}
}

func statusEvent(req *model.Request, from, to workflow.Status, trigger string) events.Event {
	return events.New(events.RequestStatusChanged, map[string]interface{}{
		"request_id": req.ID,
		"code":       req.Code,
		"from":       from,
		"to":         to,
		"trigger":    trigger,
	})
}

// buildItems resolves every line against the catalog; the unit is taken from the material.
func (s *requestService) buildItems(ctx context.Context, inputs []RequestItemInput) ([]model.RequestItem, error) {
	if len(inputs) == 0 {
		return nil, apperror.Validation("a request needs at least one item")
	}
	items := make([]model.RequestItem, 0, len(inputs))
	for i, in := range inputs {
		materialID, err := parseID(fmt.Sprintf("items[%d].material_id", i), in.MaterialID)
		if err != nil {
			return nil, err
		}
		if err := checkQty(fmt.Sprintf("items[%d].qty", i), in.Qty); err != nil {
			return nil, err
		}
		material, err := s.materialRepo.FindByID(ctx, materialID)
		if err != nil {
			return nil, err
		}
		items = append(items, model.RequestItem{
			MaterialID:   material.ID,
			UnitID:       material.UnitID,
			QtyRequested: in.Qty,
			Note:         in.Note,
		})
	}
	return items, nil
}

func (s *requestService) Create(ctx context.Context, actor uuid.UUID, req CreateRequestRequest) (*model.Request, error) {
	siteID, err := parseID("site_id", req.SiteID)
	if err != nil {
		return nil, err
	}
	storeID, err := parseID("store_id", req.StoreID)
	if err != nil {
		return nil, err
	}

	var created *model.Request
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.siteRepo.FindSite(txCtx, siteID); err != nil {
			return err
		}
		if _, err := s.siteRepo.FindStore(txCtx, storeID); err != nil {
			return err
		}
		items, err := s.buildItems(txCtx, req.Items)
		if err != nil {
			return err
		}
		code, err := s.numbers.Next(txCtx, repository.PrefixRequest)
		if err != nil {
			return fmt.Errorf("failed to allocate request code: %w", err)
		}

		created = &model.Request{
			Code:        code,
			SiteID:      siteID,
			StoreID:     storeID,
			RequestedBy: actor,
			Status:      workflow.StatusPending,
			Purpose:     req.Purpose,
			NeededBy:    req.NeededBy,
			Items:       items,
		}
		if err := s.repo.Create(txCtx, created); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionCreateRequest, "request", created.ID.String(), created.Code, map[string]interface{}{
			"site_id":  siteID,
			"store_id": storeID,
			"items":    len(items),
		})
	})
	if err != nil {
		logger.Error("[CreateRequest] failed", zap.Error(err))
		return nil, err
	}

	events.PublishAll(ctx, s.publisher, events.New(events.RequestCreated, map[string]interface{}{
		"request_id": created.ID,
		"code":       created.Code,
		"site_id":    created.SiteID,
		"store_id":   created.StoreID,
		"status":     created.Status,
	}))
	return created, nil
}

// UpdateDraft replaces the purpose, date and lines of a request that was not submitted yet.
func (s *requestService) UpdateDraft(ctx context.Context, actor, id uuid.UUID, req UpdateRequestRequest) (*model.Request, error) {
	var updated *model.Request
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if current.Status != workflow.StatusPending {
			return apperror.InvalidTransition(current.ID, string(current.Status), "edit")
		}
		if current.RequestedBy != actor {
			return apperror.Forbidden("only the requester can edit a draft request", map[string]any{"request_id": current.ID})
		}

		items, err := s.buildItems(txCtx, req.Items)
		if err != nil {
			return err
		}
		current.Purpose = req.Purpose
		current.NeededBy = req.NeededBy
		current.Items = nil
		if err := s.repo.Update(txCtx, current); err != nil {
			return err
		}
		if err := s.repo.ReplaceItems(txCtx, current.ID, items); err != nil {
			return err
		}
		current.Items = items
		updated = current

		return s.audit.log(txCtx, actor, model.ActionUpdateRequest, "request", current.ID.String(), current.Code, map[string]interface{}{
			"items": len(items),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *requestService) Get(ctx context.Context, id uuid.UUID) (*RequestDetail, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	issues, err := s.issueRepo.ListByRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := workflow.Allowed(req.Status)
	if allowed == nil {
		allowed = []workflow.Transition{}
	}
	return &RequestDetail{Request: req, AllowedTransitions: allowed, Issues: issues}, nil
}

func (s *requestService) List(ctx context.Context, q RequestQuery) ([]model.Request, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	f, err := q.filter()
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, page, limit)
}

func (s *requestService) ListIssues(ctx context.Context, id uuid.UUID) ([]model.Issue, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.issueRepo.ListByRequest(ctx, id)
}

// advance applies a non-review trigger under the request lock.
func (s *requestService) advance(ctx context.Context, actor, id uuid.UUID, trigger workflow.Trigger, check func(*model.Request) error) (*model.Request, error) {
	var (
		req      *model.Request
		from, to workflow.Status
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		from = req.Status
		to, err = workflow.Next(from, trigger)
		if err != nil {
			return apperror.InvalidTransition(req.ID, string(from), trigger.String())
		}
		if check != nil {
			if err := check(req); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateStatus(txCtx, req.ID, to, s.now()); err != nil {
			return err
		}
		req.Status = to
		return s.audit.log(txCtx, actor, model.ActionRequestStatusChanged, "request", req.ID.String(), req.Code, map[string]interface{}{
			"from":    from,
			"to":      to,
			"trigger": trigger.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	events.PublishAll(ctx, s.publisher, statusEvent(req, from, to, trigger.String()))
	return req, nil
}

func (s *requestService) Submit(ctx context.Context, actor, id uuid.UUID) (*model.Request, error) {
	return s.advance(ctx, actor, id, workflow.On(workflow.StepSubmit), func(req *model.Request) error {
		if req.RequestedBy != actor {
			return apperror.Forbidden("only the requester can submit a request", map[string]any{"request_id": req.ID})
		}
		if len(req.Items) == 0 {
			return apperror.Validation("a request needs at least one item").With("request_id", req.ID)
		}
		return nil
	})
}

func (s *requestService) StartReview(ctx context.Context, actor, id uuid.UUID) (*model.Request, error) {
	return s.advance(ctx, actor, id, workflow.On(workflow.StepStartReview), nil)
}

func (s *requestService) OpenIssue(ctx context.Context, actor, id uuid.UUID) (*model.Request, error) {
	return s.advance(ctx, actor, id, workflow.On(workflow.StepOpenIssue), nil)
}

func (s *requestService) Close(ctx context.Context, actor, id uuid.UUID) (*model.Request, error) {
	return s.advance(ctx, actor, id, workflow.On(workflow.StepClose), nil)
}

var reviewPermission = map[workflow.Level]string{
	workflow.LevelDSE:    model.PermRequestsReviewDSE,
	workflow.LevelPadiri: model.PermRequestsReviewPadiri,
}

// Review records one reviewer decision: one Approval row plus the resulting status,
// with the request locked for the whole transaction.
func (s *requestService) Review(ctx context.Context, reviewerID, id uuid.UUID, req ReviewRequest) (*model.Request, error) {
	level, err := workflow.ParseLevel(req.Level)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if action != workflow.ActionModified && len(req.Items) > 0 {
		return nil, apperror.Validation("item quantities can only be changed with MODIFIED")
	}
	if action == workflow.ActionModified && len(req.Items) == 0 {
		return nil, apperror.Validation("MODIFIED requires at least one item quantity")
	}
	overrides := make(map[uuid.UUID]decimal.Decimal, len(req.Items))
	for i, it := range req.Items {
		itemID, err := parseID(fmt.Sprintf("items[%d].request_item_id", i), it.RequestItemID)
		if err != nil {
			return nil, err
		}
		overrides[itemID] = it.QtyApproved
	}

	reviewer, err := s.userRepo.GetByID(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !reviewer.Can(reviewPermission[level]) {
		return nil, apperror.Forbidden("reviewer is not authorized for this review level", map[string]any{
			"reviewer_id": reviewerID,
			"level":       level,
		})
	}

	trigger := workflow.Review(level, action)
	var (
		request  *model.Request
		from, to workflow.Status
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		request, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		from = request.Status
		to, err = workflow.Next(from, trigger)
		if err != nil {
			return apperror.InvalidTransition(request.ID, string(from), trigger.String())
		}

		if action.Approves() {
			if err := s.applyApprovedQty(txCtx, request, level, action, overrides); err != nil {
				return err
			}
		}

		approval := &model.Approval{
			RequestID:  request.ID,
			Level:      level,
			ReviewerID: reviewerID,
			Action:     action,
			Comment:    req.Comment,
			FromStatus: from,
			ToStatus:   to,
		}
		if err := s.repo.CreateApproval(txCtx, approval); err != nil {
			return err
		}
		if to != from {
			if err := s.repo.UpdateStatus(txCtx, request.ID, to, s.now()); err != nil {
				return err
			}
			request.Status = to
		}
		request.Approvals = append(request.Approvals, *approval)

		return s.audit.log(txCtx, reviewerID, model.ActionReviewRequest, "request", request.ID.String(), request.Code, map[string]interface{}{
			"level":   level,
			"action":  action,
			"from":    from,
			"to":      to,
			"comment": req.Comment,
			"items":   len(overrides),
		})
	})
	if err != nil {
		return nil, err
	}

	if to != from {
		events.PublishAll(ctx, s.publisher, statusEvent(request, from, to, trigger.String()))
	}
	return request, nil
}

// applyApprovedQty fixes approved quantities. A DSE approval defaults unreviewed lines to
// the requested quantity; MODIFIED overrides the listed lines at either level. A decision
// that leaves nothing to issue is refused; the reviewer should reject instead.
func (s *requestService) applyApprovedQty(txCtx context.Context, req *model.Request, level workflow.Level, action workflow.Action, overrides map[uuid.UUID]decimal.Decimal) error {
	seen := make(map[uuid.UUID]bool, len(overrides))
	changed := make([]*model.RequestItem, 0, len(req.Items))
	for i := range req.Items {
		item := &req.Items[i]
		touched := false
		if level == workflow.LevelDSE && !item.QtyApproved.Valid {
			if err := item.Approve(item.QtyRequested); err != nil {
				return err
			}
			touched = true
		}
		if qty, ok := overrides[item.ID]; ok && action == workflow.ActionModified {
			if err := item.Approve(qty); err != nil {
				return err
			}
			seen[item.ID] = true
			touched = true
		}
		if touched {
			changed = append(changed, item)
		}
	}
	for itemID := range overrides {
		if !seen[itemID] {
			return apperror.NotFound("request item", itemID).With("request_id", req.ID)
		}
	}
	if !req.HasApprovedQty() {
		return apperror.Validation("every approved quantity is zero; reject the request instead").
			With("request_id", req.ID).
			With("action", string(action))
	}
	for _, item := range changed {
		if err := s.repo.SaveItem(txCtx, item); err != nil {
			return err
		}
	}
	return nil
}

// IssueAgainstItem issues stock for a single line; it is the one-line form of IssueItems.
func (s *requestService) IssueAgainstItem(ctx context.Context, actor, itemID uuid.UUID, req IssueItemRequest) (*IssueResponse, error) {
	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.IssueItems(ctx, actor, item.RequestID, IssueRequest{Items: []IssueLineInput{{
		RequestItemID: itemID.String(),
		Qty:           req.Qty,
		Note:          req.Note,
	}}})
}

type issueLine struct {
	item *model.RequestItem
	qty  decimal.Decimal
	note string
}

// IssueItems issues several lines of one request under a single Issue document. Every
// line is checked against its approved quantity before any stock moves.
func (s *requestService) IssueItems(ctx context.Context, actor, id uuid.UUID, req IssueRequest) (*IssueResponse, error) {
	if len(req.Items) == 0 {
		return nil, apperror.Validation("at least one issue line is required")
	}
	type parsedLine struct {
		itemID uuid.UUID
		qty    decimal.Decimal
		note   string
	}
	parsed := make([]parsedLine, 0, len(req.Items))
	for i, in := range req.Items {
		itemID, err := parseID(fmt.Sprintf("items[%d].request_item_id", i), in.RequestItemID)
		if err != nil {
			return nil, err
		}
		if err := checkQty(fmt.Sprintf("items[%d].qty", i), in.Qty); err != nil {
			return nil, err
		}
		parsed = append(parsed, parsedLine{itemID: itemID, qty: in.Qty, note: in.Note})
	}

	var (
		request   *model.Request
		issue     *model.Issue
		movements []*model.StockMovement
		from, to  workflow.Status
		lines     []issueLine
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		movements, lines = nil, nil

		var err error
		request, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		from = request.Status
		if !from.Issuable() {
			return apperror.InvalidTransition(request.ID, string(from), "issue")
		}

		byID := make(map[uuid.UUID]*model.RequestItem, len(request.Items))
		for i := range request.Items {
			byID[request.Items[i].ID] = &request.Items[i]
		}
		for _, p := range parsed {
			item, ok := byID[p.itemID]
			if !ok {
				return apperror.NotFound("request item", p.itemID).With("request_id", request.ID)
			}
			if err := item.ApplyIssue(p.qty); err != nil {
				return err
			}
			lines = append(lines, issueLine{item: item, qty: p.qty, note: p.note})
		}

		number, err := s.numbers.Next(txCtx, repository.PrefixIssue)
		if err != nil {
			return fmt.Errorf("failed to allocate issue number: %w", err)
		}
		issue = &model.Issue{
			Number:    number,
			RequestID: request.ID,
			StoreID:   request.StoreID,
			IssuedBy:  actor,
		}
		if err := s.issueRepo.Create(txCtx, issue); err != nil {
			return err
		}

		for _, l := range lines {
			movement, err := s.writer.Record(txCtx, MovementInput{
				StoreID:    request.StoreID,
				MaterialID: l.item.MaterialID,
				Type:       ledger.MovementOut,
				Source:     ledger.IssueRef{ID: issue.ID},
				Qty:        l.qty,
				Notes:      request.Code,
				Actor:      actor,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)

			line := model.IssueItem{
				IssueID:       issue.ID,
				RequestItemID: l.item.ID,
				MaterialID:    l.item.MaterialID,
				Qty:           l.qty,
				MovementID:    movement.ID,
				Note:          l.note,
			}
			if err := s.issueRepo.CreateItem(txCtx, &line); err != nil {
				return err
			}
			issue.Items = append(issue.Items, line)
		}
		for _, item := range byID {
			if !touched(lines, item.ID) {
				continue
			}
			if err := s.repo.SaveItem(txCtx, item); err != nil {
				return err
			}
		}

		to, err = workflow.AfterIssuance(from, workflow.ProgressOf(request.Progress()))
		if err != nil {
			return apperror.InvalidTransition(request.ID, string(from), "issue")
		}
		if to != from {
			if err := s.repo.UpdateStatus(txCtx, request.ID, to, s.now()); err != nil {
				return err
			}
			request.Status = to
		}

		details := make([]map[string]interface{}, 0, len(lines))
		for _, l := range lines {
			details = append(details, map[string]interface{}{
				"request_item_id": l.item.ID,
				"qty":             l.qty,
				"qty_issued":      l.item.QtyIssued,
				"qty_remaining":   l.item.QtyRemaining,
			})
		}
		return s.audit.log(txCtx, actor, model.ActionIssueItem, "request", request.ID.String(), request.Code, map[string]interface{}{
			"issue_number": issue.Number,
			"lines":        details,
			"from":         from,
			"to":           to,
		})
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrOverIssue) && !errors.Is(err, apperror.ErrInsufficientStock) {
			logger.Error("[IssueItems] failed", zap.String("request_id", id.String()), zap.Error(err))
		}
		return nil, err
	}

	evs := movementEvents(movements...)
	for _, l := range lines {
		evs = append(evs, events.New(events.RequestItemIssued, map[string]interface{}{
			"request_id":      request.ID,
			"request_item_id": l.item.ID,
			"issue_id":        issue.ID,
			"qty":             l.qty,
			"qty_issued":      l.item.QtyIssued,
			"qty_remaining":   l.item.QtyRemaining,
		}))
	}
	if to != from {
		evs = append(evs, statusEvent(request, from, to, "issue"))
	}
	events.PublishAll(ctx, s.publisher, evs...)

	return &IssueResponse{Issue: issue, Status: request.Status, Request: request}, nil
}

func touched(lines []issueLine, itemID uuid.UUID) bool {
	for _, l := range lines {
		if l.item.ID == itemID {
			return true
		}
	}
	return false
}

// Receive records what the site confirmed. A complete receipt closes the request.
func (s *requestService) Receive(ctx context.Context, actor, id uuid.UUID, req ReceiveRequest) (*model.Request, error) {
	quantities := make(map[uuid.UUID]decimal.Decimal, len(req.Items))
	for i, in := range req.Items {
		itemID, err := parseID(fmt.Sprintf("items[%d].request_item_id", i), in.RequestItemID)
		if err != nil {
			return nil, err
		}
		if err := checkQty(fmt.Sprintf("items[%d].qty", i), in.Qty); err != nil {
			return nil, err
		}
		quantities[itemID] = quantities[itemID].Add(in.Qty)
	}

	var (
		request *model.Request
		from    workflow.Status
		path    []workflow.Status
	)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		request, err = s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		from = request.Status
		if from != workflow.StatusIssued && from != workflow.StatusReceived {
			return apperror.InvalidTransition(request.ID, string(from), "receive")
		}

		seen := 0
		received := decimal.Zero
		for i := range request.Items {
			item := &request.Items[i]
			qty, ok := quantities[item.ID]
			if len(quantities) == 0 {
				qty, ok = item.QtyIssued.Sub(item.QtyReceived), true
				if !qty.IsPositive() {
					continue
				}
			}
			if !ok {
				continue
			}
			seen++
			if err := item.ApplyReceipt(qty); err != nil {
				return err
			}
			if err := s.repo.SaveItem(txCtx, item); err != nil {
				return err
			}
			received = received.Add(qty)
		}
		if len(quantities) > 0 && seen != len(quantities) {
			return apperror.Validation("receipt lists items that do not belong to the request").With("request_id", request.ID)
		}
		if received.IsZero() && from == workflow.StatusReceived {
			return apperror.Validation("nothing left to receive").With("request_id", request.ID)
		}

		path, err = workflow.AfterReceipt(from, request.FullyReceived())
		if err != nil {
			return apperror.InvalidTransition(request.ID, string(from), "receive")
		}
		for _, st := range path {
			if err := s.repo.UpdateStatus(txCtx, request.ID, st, s.now()); err != nil {
				return err
			}
			request.Status = st
		}

		return s.audit.log(txCtx, actor, model.ActionReceiveRequest, "request", request.ID.String(), request.Code, map[string]interface{}{
			"qty_received": received,
			"from":         from,
			"to":           request.Status,
			"note":         req.Note,
		})
	})
	if err != nil {
		return nil, err
	}

	evs := make([]events.Event, 0, len(path))
	prev := from
	for _, st := range path {
		evs = append(evs, statusEvent(request, prev, st, string(workflow.StepReceive)))
		prev = st
	}
	events.PublishAll(ctx, s.publisher, evs...)
	return request, nil
}
