package service

import (
	"context"
	"sync"
	"testing"

	"requisition-backend/internal/events"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/workflow"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) seedStock(t *testing.T, material uuid.UUID, qty int64) {
	t.Helper()
	_, err := f.stock.Adjust(context.Background(), f.keeper.ID, AdjustStockRequest{
		StoreID:    f.store.ID.String(),
		MaterialID: material.String(),
		Direction:  string(ledger.DirectionIncrease),
		Qty:        dec(qty),
		Reason:     "opening balance",
	})
	require.NoError(t, err)
}

func (f *fixture) createRequest(t *testing.T, lines ...RequestItemInput) *model.Request {
	t.Helper()
	if len(lines) == 0 {
		lines = []RequestItemInput{{MaterialID: f.cement.ID.String(), Qty: dec(100)}}
	}
	req, err := f.requests.Create(context.Background(), f.requester.ID, CreateRequestRequest{
		SiteID:  f.site.ID.String(),
		StoreID: f.store.ID.String(),
		Purpose: "slab pour",
		Items:   lines,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) review(t *testing.T, reviewer model.User, id uuid.UUID, level workflow.Level, action workflow.Action, items ...ApprovedQtyInput) *model.Request {
	t.Helper()
	req, err := f.requests.Review(context.Background(), reviewer.ID, id, ReviewRequest{
		Level:  string(level),
		Action: string(action),
		Items:  items,
	})
	require.NoError(t, err)
	return req
}

// approvedRequest walks a fresh request through both review levels.
func (f *fixture) approvedRequest(t *testing.T, lines ...RequestItemInput) *model.Request {
	t.Helper()
	ctx := context.Background()
	req := f.createRequest(t, lines...)
	_, err := f.requests.Submit(ctx, f.requester.ID, req.ID)
	require.NoError(t, err)
	f.review(t, f.dse, req.ID, workflow.LevelDSE, workflow.ActionApproved)
	out := f.review(t, f.padiri, req.ID, workflow.LevelPadiri, workflow.ActionApproved)
	require.Equal(t, workflow.StatusApproved, out.Status)
	return out
}

func (f *fixture) issue(ctx context.Context, itemID uuid.UUID, qty int64) (*IssueResponse, error) {
	return f.requests.IssueAgainstItem(ctx, f.keeper.ID, itemID, IssueItemRequest{Qty: dec(qty)})
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 500)

	req := f.approvedRequest(t)
	itemID := req.Items[0].ID
	assert.True(t, req.Items[0].QtyApproved.Decimal.Equal(dec(100)))

	res, err := f.issue(ctx, itemID, 60)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPartiallyIssued, res.Status)
	assert.True(t, res.Request.Items[0].QtyIssued.Equal(dec(60)))
	assert.True(t, res.Request.Items[0].QtyRemaining.Equal(dec(40)))
	require.Len(t, res.Issue.Items, 1)

	res, err = f.issue(ctx, itemID, 40)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusIssued, res.Status)
	assert.True(t, res.Request.Items[0].QtyIssued.Equal(dec(100)))
	assert.True(t, res.Request.Items[0].QtyRemaining.IsZero())
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(400)))

	issues, err := f.requests.ListIssues(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, issues, 2, "each issuance call gets its own document")

	closed, err := f.requests.Receive(ctx, f.requester.ID, req.ID, ReceiveRequest{})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusClosed, closed.Status)

	detail, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.AllowedTransitions)
	assert.Len(t, detail.Approvals, 2)

	assert.Contains(t, f.pub.types(), events.RequestCreated)
	assert.Contains(t, f.pub.types(), events.RequestItemIssued)
	assert.Contains(t, f.pub.types(), events.StockMovementRecorded)
	assert.Contains(t, f.auditActions(), model.ActionReviewRequest)
	assert.Contains(t, f.auditActions(), model.ActionIssueItem)
}

func TestPartialReceiptKeepsRequestReceived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 100)
	req := f.approvedRequest(t)
	itemID := req.Items[0].ID
	_, err := f.issue(ctx, itemID, 100)
	require.NoError(t, err)

	got, err := f.requests.Receive(ctx, f.requester.ID, req.ID, ReceiveRequest{
		Items: []ReceiveLineInput{{RequestItemID: itemID.String(), Qty: dec(70)}},
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReceived, got.Status)

	got, err = f.requests.Receive(ctx, f.requester.ID, req.ID, ReceiveRequest{
		Items: []ReceiveLineInput{{RequestItemID: itemID.String(), Qty: dec(30)}},
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusClosed, got.Status)
}

func TestReviewRequiresLevelAuthority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	req := f.createRequest(t)
	_, err := f.requests.Submit(ctx, f.requester.ID, req.ID)
	require.NoError(t, err)
	f.review(t, f.dse, req.ID, workflow.LevelDSE, workflow.ActionVerified)

	_, err = f.requests.Review(ctx, f.dse.ID, req.ID, ReviewRequest{
		Level:  string(workflow.LevelPadiri),
		Action: string(workflow.ActionApproved),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	detail, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusWaitingPadiriReview, detail.Status)
	assert.Len(t, detail.Approvals, 1)
}

func TestReviewRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	req := f.createRequest(t)

	_, err := f.requests.Review(ctx, f.dse.ID, req.ID, ReviewRequest{
		Level:  string(workflow.LevelDSE),
		Action: string(workflow.ActionApproved),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, string(workflow.StatusPending), appErr.Fields["current_status"])

	_, err = f.requests.Submit(ctx, f.requester.ID, req.ID)
	require.NoError(t, err)
	_, err = f.requests.Review(ctx, f.padiri.ID, req.ID, ReviewRequest{
		Level:  string(workflow.LevelPadiri),
		Action: string(workflow.ActionApproved),
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestReviewDecisions(t *testing.T) {
	ctx := context.Background()

	t.Run("modified overrides approved quantity", func(t *testing.T) {
		f := newFixture(ledger.Policy{})
		req := f.createRequest(t)
		_, err := f.requests.Submit(ctx, f.requester.ID, req.ID)
		require.NoError(t, err)
		itemID := req.Items[0].ID

		got := f.review(t, f.dse, req.ID, workflow.LevelDSE, workflow.ActionModified,
			ApprovedQtyInput{RequestItemID: itemID.String(), QtyApproved: dec(80)})
		assert.Equal(t, workflow.StatusWaitingPadiriReview, got.Status)
		assert.True(t, got.Items[0].QtyApproved.Decimal.Equal(dec(80)))

		got = f.review(t, f.padiri, req.ID, workflow.LevelPadiri, workflow.ActionVerified)
		assert.Equal(t, workflow.StatusVerified, got.Status)
		assert.True(t, got.Items[0].QtyApproved.Decimal.Equal(dec(80)))
	})

	t.Run("needs changes keeps status", func(t *testing.T) {
		f := newFixture(ledger.Policy{})
		req := f.createRequest(t)
		_, err := f.requests.Submit(ctx, f.requester.ID, req.ID)
		require.NoError(t, err)
		_, err = f.requests.StartReview(ctx, f.dse.ID, req.ID)
		require.NoError(t, err)

		got := f.review(t, f.dse, req.ID, workflow.LevelDSE, workflow.ActionNeedsChanges)
		assert.Equal(t, workflow.StatusDSEReview, got.Status)
		require.Len(t, got.Approvals, 1)
		assert.Equal(t, workflow.ActionNeedsChanges, got.Approvals[0].Action)
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		f := newFixture(ledger.Policy{})
		req := f.createRequest(t)
		_, err := f.requests.Submit(ctx, f.requester.ID, req.ID)
		require.NoError(t, err)

		got := f.review(t, f.dse, req.ID, workflow.LevelDSE, workflow.ActionRejected)
		assert.Equal(t, workflow.StatusRejected, got.Status)

		_, err = f.requests.Review(ctx, f.dse.ID, req.ID, ReviewRequest{
			Level:  string(workflow.LevelDSE),
			Action: string(workflow.ActionApproved),
		})
		assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
		_, err = f.requests.Close(ctx, f.requester.ID, req.ID)
		assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	})

	t.Run("approving with nothing left to issue is refused", func(t *testing.T) {
		f := newFixture(ledger.Policy{})
		req := f.createRequest(t,
			RequestItemInput{MaterialID: f.cement.ID.String(), Qty: dec(100)},
			RequestItemInput{MaterialID: f.sand.ID.String(), Qty: dec(4)},
		)
		_, err := f.requests.Submit(ctx, f.requester.ID, req.ID)
		require.NoError(t, err)

		_, err = f.requests.Review(ctx, f.dse.ID, req.ID, ReviewRequest{
			Level:  string(workflow.LevelDSE),
			Action: string(workflow.ActionModified),
			Items: []ApprovedQtyInput{
				{RequestItemID: req.Items[0].ID.String(), QtyApproved: dec(0)},
				{RequestItemID: req.Items[1].ID.String(), QtyApproved: dec(0)},
			},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrValidation)

		detail, err := f.requests.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusSubmitted, detail.Status)
		assert.Empty(t, detail.Approvals)
		for _, it := range detail.Items {
			assert.False(t, it.QtyApproved.Valid)
		}

		got := f.review(t, f.dse, req.ID, workflow.LevelDSE, workflow.ActionModified,
			ApprovedQtyInput{RequestItemID: req.Items[1].ID.String(), QtyApproved: dec(0)})
		assert.Equal(t, workflow.StatusWaitingPadiriReview, got.Status)
	})

	t.Run("item quantities need MODIFIED", func(t *testing.T) {
		f := newFixture(ledger.Policy{})
		req := f.createRequest(t)
		_, err := f.requests.Review(ctx, f.dse.ID, req.ID, ReviewRequest{
			Level:  string(workflow.LevelDSE),
			Action: string(workflow.ActionApproved),
			Items:  []ApprovedQtyInput{{RequestItemID: req.Items[0].ID.String(), QtyApproved: dec(1)}},
		})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})
}

func TestOverIssueLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 500)
	req := f.approvedRequest(t)
	itemID := req.Items[0].ID

	_, err := f.issue(ctx, itemID, 120)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrOverIssue)

	detail, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, detail.Status)
	assert.True(t, detail.Items[0].QtyIssued.IsZero())
	assert.Empty(t, detail.Issues)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(500)))
}

func TestIssueFinerThanColumnPrecision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 500)
	req := f.approvedRequest(t)
	itemID := req.Items[0].ID

	_, err := f.requests.IssueAgainstItem(ctx, f.keeper.ID, itemID, IssueItemRequest{Qty: decimal.RequireFromString("99.9995")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	detail, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, detail.Status)
	assert.True(t, detail.Items[0].QtyIssued.IsZero())
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(500)))

	_, err = f.requests.IssueAgainstItem(ctx, f.keeper.ID, itemID, IssueItemRequest{Qty: decimal.RequireFromString("99.999")})
	require.NoError(t, err)
}

func TestConcurrentIssuesCannotExceedApproved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 500)
	req := f.approvedRequest(t)
	itemID := req.Items[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.issue(ctx, itemID, 60)
		}(i)
	}
	wg.Wait()

	succeeded, overIssued := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.KindOf(err) == apperror.KindOverIssue:
			overIssued++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, overIssued)

	detail, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, detail.Items[0].QtyIssued.Equal(dec(60)))
	assert.True(t, detail.Items[0].QtyRemaining.Equal(dec(40)))
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(440)))
}

func TestIssueWithoutStockRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 10)
	req := f.approvedRequest(t)

	_, err := f.issue(ctx, req.Items[0].ID, 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	detail, err := f.requests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, detail.Items[0].QtyIssued.IsZero())
	assert.Empty(t, detail.Issues)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(10)))
}

func TestBatchIssueUsesOneDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 100)
	f.seedStock(t, f.sand.ID, 100)
	req := f.approvedRequest(t,
		RequestItemInput{MaterialID: f.cement.ID.String(), Qty: dec(10)},
		RequestItemInput{MaterialID: f.sand.ID.String(), Qty: dec(20)},
	)

	opened, err := f.requests.OpenIssue(ctx, f.keeper.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusIssuedFromApproved, opened.Status)

	res, err := f.requests.IssueItems(ctx, f.keeper.ID, req.ID, IssueRequest{Items: []IssueLineInput{
		{RequestItemID: req.Items[0].ID.String(), Qty: dec(10)},
		{RequestItemID: req.Items[1].ID.String(), Qty: dec(20)},
	}})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusIssued, res.Status)
	assert.Len(t, res.Issue.Items, 2)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(90)))
	assert.True(t, f.onHand(f.sand.ID).Equal(dec(80)))
}

func TestDraftEditing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	req := f.createRequest(t)

	_, err := f.requests.UpdateDraft(ctx, f.dse.ID, req.ID, UpdateRequestRequest{
		Items: []RequestItemInput{{MaterialID: f.sand.ID.String(), Qty: dec(5)}},
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := f.requests.UpdateDraft(ctx, f.requester.ID, req.ID, UpdateRequestRequest{
		Purpose: "columns",
		Items:   []RequestItemInput{{MaterialID: f.sand.ID.String(), Qty: dec(5)}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, f.sand.ID, updated.Items[0].MaterialID)

	_, err = f.requests.Submit(ctx, f.requester.ID, req.ID)
	require.NoError(t, err)
	_, err = f.requests.UpdateDraft(ctx, f.requester.ID, req.ID, UpdateRequestRequest{
		Items: []RequestItemInput{{MaterialID: f.cement.ID.String(), Qty: dec(5)}},
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
}

func TestCreateRequestValidatesCatalog(t *testing.T) {
	f := newFixture(ledger.Policy{})
	_, err := f.requests.Create(context.Background(), f.requester.ID, CreateRequestRequest{
		SiteID:  f.site.ID.String(),
		StoreID: f.store.ID.String(),
		Items:   []RequestItemInput{{MaterialID: uuid.NewString(), Qty: dec(1)}},
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	list, total, err := f.requests.List(context.Background(), RequestQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}
