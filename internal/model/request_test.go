package model

import (
	"errors"
	"testing"

	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func approvedItem(t *testing.T, approved int64) *RequestItem {
	t.Helper()
	it := &RequestItem{ID: uuid.New(), QtyRequested: d(approved)}
	require.NoError(t, it.Approve(d(approved)))
	return it
}

func TestApplyIssueAccumulates(t *testing.T) {
	it := approvedItem(t, 100)

	require.NoError(t, it.ApplyIssue(d(60)))
	assert.True(t, it.QtyIssued.Equal(d(60)))
	assert.True(t, it.QtyRemaining.Equal(d(40)))

	require.NoError(t, it.ApplyIssue(d(40)))
	assert.True(t, it.QtyIssued.Equal(d(100)))
	assert.True(t, it.QtyRemaining.IsZero())
}

func TestApplyIssueRejectsOverIssueWithoutMutation(t *testing.T) {
	it := approvedItem(t, 100)
	require.NoError(t, it.ApplyIssue(d(70)))

	err := it.ApplyIssue(d(31))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrOverIssue))
	assert.True(t, it.QtyIssued.Equal(d(70)))
	assert.True(t, it.QtyRemaining.Equal(d(30)))
}

func TestApplyIssueValidation(t *testing.T) {
	tests := []struct {
		name string
		item *RequestItem
		qty  decimal.Decimal
	}{
		{name: "zero", item: approvedItem(t, 10), qty: d(0)},
		{name: "negative", item: approvedItem(t, 10), qty: d(-1)},
		{name: "unreviewed", item: &RequestItem{ID: uuid.New(), QtyRequested: d(10)}, qty: d(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.ApplyIssue(tt.qty)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.True(t, tt.item.QtyIssued.IsZero())
		})
	}
}

func TestApproveCannotDropBelowIssued(t *testing.T) {
	it := approvedItem(t, 50)
	require.NoError(t, it.ApplyIssue(d(20)))

	assert.Error(t, it.Approve(d(10)))
	require.NoError(t, it.Approve(d(30)))
	assert.True(t, it.QtyRemaining.Equal(d(10)))
}

func TestApplyReceipt(t *testing.T) {
	it := approvedItem(t, 10)
	require.NoError(t, it.ApplyIssue(d(6)))

	require.NoError(t, it.ApplyReceipt(d(4)))
	assert.Error(t, it.ApplyReceipt(d(3)))
	require.NoError(t, it.ApplyReceipt(d(2)))
	assert.True(t, it.QtyReceived.Equal(d(6)))

	req := &Request{Items: []RequestItem{*it}}
	assert.True(t, req.FullyReceived())
}

func TestPurchaseOrderRecomputeStatus(t *testing.T) {
	po := &PurchaseOrder{
		Status: POStatusOpen,
		Items: []PurchaseOrderItem{
			{QtyOrdered: d(10)},
			{QtyOrdered: d(5)},
		},
	}

	po.RecomputeStatus()
	assert.Equal(t, POStatusOpen, po.Status)

	po.Items[0].QtyReceived = d(10)
	po.RecomputeStatus()
	assert.Equal(t, POStatusPartiallyReceived, po.Status)

	po.Items[1].QtyReceived = d(5)
	po.RecomputeStatus()
	assert.Equal(t, POStatusReceived, po.Status)

	po.Status = POStatusCancelled
	po.RecomputeStatus()
	assert.Equal(t, POStatusCancelled, po.Status)
}

func TestQuantitiesBeyondThreeDecimalsAreRejected(t *testing.T) {
	overPrecise := decimal.RequireFromString("99.9995")

	t.Run("approve", func(t *testing.T) {
		it := &RequestItem{ID: uuid.New(), QtyRequested: d(100)}
		err := it.Approve(overPrecise)
		assert.True(t, errors.Is(err, apperror.ErrValidation))
		assert.False(t, it.QtyApproved.Valid)
	})

	t.Run("issue", func(t *testing.T) {
		it := approvedItem(t, 100)
		err := it.ApplyIssue(overPrecise)
		assert.True(t, errors.Is(err, apperror.ErrValidation))
		assert.True(t, it.QtyIssued.IsZero())
		assert.True(t, it.QtyRemaining.Equal(d(100)))
	})

	t.Run("receipt", func(t *testing.T) {
		it := approvedItem(t, 100)
		require.NoError(t, it.ApplyIssue(d(100)))
		err := it.ApplyReceipt(overPrecise)
		assert.True(t, errors.Is(err, apperror.ErrValidation))
		assert.True(t, it.QtyReceived.IsZero())
	})

	t.Run("trailing zeros are fine", func(t *testing.T) {
		it := approvedItem(t, 100)
		require.NoError(t, it.ApplyIssue(decimal.RequireFromString("1.2500")))
		assert.True(t, it.QtyIssued.Equal(decimal.RequireFromString("1.25")))
	})
}
