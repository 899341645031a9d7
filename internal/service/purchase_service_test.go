package service

import (
	"context"
	"testing"

	"requisition-backend/internal/events"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) createOrder(t *testing.T, qty int64) *model.PurchaseOrder {
	t.Helper()
	po, err := f.purchases.CreateOrder(context.Background(), f.keeper.ID, CreatePurchaseOrderRequest{
		SupplierName: "Cement Co",
		StoreID:      f.store.ID.String(),
		Items:        []PurchaseOrderItemInput{{MaterialID: f.cement.ID.String(), Qty: dec(qty), UnitPrice: dec(12)}},
	})
	require.NoError(t, err)
	return po
}

func TestGoodsReceiptFillsStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	po := f.createOrder(t, 100)
	assert.Equal(t, model.POStatusOpen, po.Status)
	assert.Equal(t, "PO-20240101-00001", po.Number)
	lineID := po.Items[0].ID.String()

	res, err := f.purchases.ReceiveGoods(ctx, f.keeper.ID, po.ID, CreateGoodsReceiptRequest{
		DeliveryNote: "DN-1",
		Items:        []ReceiptLineInput{{PurchaseOrderItemID: lineID, Qty: dec(40)}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.POStatusPartiallyReceived, res.Order.Status)
	require.Len(t, res.Receipt.Items, 1)
	require.NotNil(t, res.Receipt.Items[0].MovementID)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(40)))

	res, err = f.purchases.ReceiveGoods(ctx, f.keeper.ID, po.ID, CreateGoodsReceiptRequest{
		Items: []ReceiptLineInput{{PurchaseOrderItemID: lineID, Qty: dec(60)}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.POStatusReceived, res.Order.Status)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(100)))

	movements := f.stockRepo.movementsOf(f.store.ID, f.cement.ID)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, ledger.MovementIn, m.MovementType)
		assert.Equal(t, ledger.SourceGRN, m.SourceType)
		assert.True(t, m.UnitPrice.Decimal.Equal(dec(12)))
	}

	_, err = f.purchases.ReceiveGoods(ctx, f.keeper.ID, po.ID, CreateGoodsReceiptRequest{
		Items: []ReceiptLineInput{{PurchaseOrderItemID: lineID, Qty: dec(1)}},
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Contains(t, f.pub.types(), events.GoodsReceiptCreated)
}

func TestPurchaseOrderSupplier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	active := model.Supplier{ID: uuid.New(), Name: "Lafarge", IsActive: true}
	retired := model.Supplier{ID: uuid.New(), Name: "Old Quarry"}
	f.db.suppliers[active.ID] = active
	f.db.suppliers[retired.ID] = retired

	items := []PurchaseOrderItemInput{{MaterialID: f.cement.ID.String(), Qty: dec(5), UnitPrice: dec(10)}}

	po, err := f.purchases.CreateOrder(ctx, f.keeper.ID, CreatePurchaseOrderRequest{
		SupplierID:   active.ID.String(),
		SupplierName: "ignored",
		StoreID:      f.store.ID.String(),
		Items:        items,
	})
	require.NoError(t, err)
	require.NotNil(t, po.SupplierID)
	assert.Equal(t, active.ID, *po.SupplierID)
	assert.Equal(t, "Lafarge", po.SupplierName)

	_, err = f.purchases.CreateOrder(ctx, f.keeper.ID, CreatePurchaseOrderRequest{
		SupplierID: retired.ID.String(),
		StoreID:    f.store.ID.String(),
		Items:      items,
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.purchases.CreateOrder(ctx, f.keeper.ID, CreatePurchaseOrderRequest{
		SupplierID: uuid.NewString(),
		StoreID:    f.store.ID.String(),
		Items:      items,
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.purchases.CreateOrder(ctx, f.keeper.ID, CreatePurchaseOrderRequest{
		StoreID: f.store.ID.String(),
		Items:   items,
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestOverReceiptIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	po := f.createOrder(t, 10)

	_, err := f.purchases.ReceiveGoods(ctx, f.keeper.ID, po.ID, CreateGoodsReceiptRequest{
		Items: []ReceiptLineInput{{PurchaseOrderItemID: po.Items[0].ID.String(), Qty: dec(11)}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.True(t, f.onHand(f.cement.ID).IsZero())

	got, err := f.purchases.GetOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, model.POStatusOpen, got.Status)
	assert.True(t, got.Items[0].QtyReceived.IsZero())
}

func TestCancelPurchaseOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})

	open := f.createOrder(t, 10)
	cancelled, err := f.purchases.CancelOrder(ctx, f.keeper.ID, open.ID)
	require.NoError(t, err)
	assert.Equal(t, model.POStatusCancelled, cancelled.Status)

	_, err = f.purchases.ReceiveGoods(ctx, f.keeper.ID, open.ID, CreateGoodsReceiptRequest{
		Items: []ReceiptLineInput{{PurchaseOrderItemID: open.Items[0].ID.String(), Qty: dec(1)}},
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	started := f.createOrder(t, 10)
	_, err = f.purchases.ReceiveGoods(ctx, f.keeper.ID, started.ID, CreateGoodsReceiptRequest{
		Items: []ReceiptLineInput{{PurchaseOrderItemID: started.Items[0].ID.String(), Qty: dec(5)}},
	})
	require.NoError(t, err)
	_, err = f.purchases.CancelOrder(ctx, f.keeper.ID, started.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}
