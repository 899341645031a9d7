package service

import (
	"context"
	"math/rand"
	"testing"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) movement(typ ledger.MovementType, src ledger.SourceRef, qty int64) MovementInput {
	return MovementInput{
		StoreID:    f.store.ID,
		MaterialID: f.cement.ID,
		Type:       typ,
		Source:     src,
		Qty:        dec(qty),
		Actor:      f.keeper.ID,
	}
}

func TestRecordMovementKeepsBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})

	in, err := f.stock.RecordMovement(ctx, f.movement(ledger.MovementIn, ledger.GRNRef{ID: uuid.New()}, 50))
	require.NoError(t, err)
	assert.True(t, in.BalanceAfter.Equal(dec(50)))
	assert.Equal(t, ledger.SourceGRN, in.SourceType)

	out, err := f.stock.RecordMovement(ctx, f.movement(ledger.MovementOut, ledger.IssueRef{ID: uuid.New()}, 20))
	require.NoError(t, err)
	assert.True(t, out.BalanceAfter.Equal(dec(30)))
	assert.Nil(t, out.Direction)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(30)))
	assert.Contains(t, f.auditActions(), model.ActionRecordMovement)
}

func TestRecordMovementRejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		in   func(f *fixture) MovementInput
		kind apperror.Kind
	}{
		{
			name: "out beyond balance",
			in:   func(f *fixture) MovementInput { return f.movement(ledger.MovementOut, ledger.IssueRef{ID: uuid.New()}, 1) },
			kind: apperror.KindInsufficientStock,
		},
		{
			name: "zero quantity",
			in:   func(f *fixture) MovementInput { return f.movement(ledger.MovementIn, ledger.GRNRef{ID: uuid.New()}, 0) },
			kind: apperror.KindValidation,
		},
		{
			name: "receipt sourced from an issue",
			in:   func(f *fixture) MovementInput { return f.movement(ledger.MovementIn, ledger.IssueRef{ID: uuid.New()}, 5) },
			kind: apperror.KindValidation,
		},
		{
			name: "unknown store",
			in: func(f *fixture) MovementInput {
				m := f.movement(ledger.MovementIn, ledger.GRNRef{ID: uuid.New()}, 5)
				m.StoreID = uuid.New()
				return m
			},
			kind: apperror.KindNotFound,
		},
		{
			name: "unknown material",
			in: func(f *fixture) MovementInput {
				m := f.movement(ledger.MovementIn, ledger.GRNRef{ID: uuid.New()}, 5)
				m.MaterialID = uuid.New()
				return m
			},
			kind: apperror.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(ledger.Policy{})
			_, err := f.stock.RecordMovement(ctx, tt.in(f))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Empty(t, f.stockRepo.movementsOf(f.store.ID, f.cement.ID))
		})
	}
}

func TestNegativeStockPolicy(t *testing.T) {
	f := newFixture(ledger.Policy{AllowNegative: true})
	out, err := f.stock.RecordMovement(context.Background(), f.movement(ledger.MovementOut, ledger.IssueRef{ID: uuid.New()}, 5))
	require.NoError(t, err)
	assert.True(t, out.BalanceAfter.Equal(dec(-5)))
}

func TestAdjustCreatesDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 10)

	res, err := f.stock.Adjust(ctx, f.keeper.ID, AdjustStockRequest{
		StoreID:    f.store.ID.String(),
		MaterialID: f.cement.ID.String(),
		Direction:  "decrease",
		Qty:        dec(4),
		Reason:     "damaged bags",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Adjustment.MovementID)
	assert.Equal(t, res.Movement.ID, *res.Adjustment.MovementID)
	assert.Equal(t, ledger.MovementAdjustment, res.Movement.MovementType)
	require.NotNil(t, res.Movement.Direction)
	assert.Equal(t, ledger.DirectionDecrease, *res.Movement.Direction)
	assert.Equal(t, "ADJ-20240101-00002", res.Adjustment.Number)
	assert.True(t, f.onHand(f.cement.ID).Equal(dec(6)))

	_, err = f.stock.Adjust(ctx, f.keeper.ID, AdjustStockRequest{
		StoreID:    f.store.ID.String(),
		MaterialID: f.cement.ID.String(),
		Direction:  "decrease",
		Qty:        dec(7),
		Reason:     "count",
	})
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = f.stock.Adjust(ctx, f.keeper.ID, AdjustStockRequest{
		StoreID:    f.store.ID.String(),
		MaterialID: f.cement.ID.String(),
		Direction:  "sideways",
		Qty:        dec(1),
		Reason:     "count",
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestBalanceMatchesLedgerForRandomSequences(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		f := newFixture(ledger.Policy{})
		expected := decimal.Zero
		for i := 0; i < 40; i++ {
			qty := int64(rng.Intn(30) + 1)
			var in MovementInput
			switch rng.Intn(3) {
			case 0:
				in = f.movement(ledger.MovementIn, ledger.GRNRef{ID: uuid.New()}, qty)
			case 1:
				in = f.movement(ledger.MovementOut, ledger.IssueRef{ID: uuid.New()}, qty)
			default:
				in = f.movement(ledger.MovementAdjustment, ledger.AdjustmentRef{ID: uuid.New()}, qty)
				in.Direction = ledger.DirectionDecrease
				if rng.Intn(2) == 0 {
					in.Direction = ledger.DirectionIncrease
				}
			}
			m, err := f.stock.RecordMovement(ctx, in)
			if err != nil {
				require.Equal(t, apperror.KindInsufficientStock, apperror.KindOf(err))
				continue
			}
			e, err := m.Entry()
			require.NoError(t, err)
			expected = expected.Add(e.Delta())
			require.False(t, m.BalanceAfter.IsNegative())
		}
		assert.True(t, f.onHand(f.cement.ID).Equal(expected), "run %d", run)

		report, err := f.stock.Reconcile(ctx, "", "")
		require.NoError(t, err)
		assert.Empty(t, report.Discrepancies)
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ledger.Policy{})
	f.seedStock(t, f.cement.ID, 10)
	f.seedStock(t, f.sand.ID, 5)

	f.db.mu.Lock()
	key := [2]uuid.UUID{f.store.ID, f.cement.ID}
	st := f.db.state.stock[key]
	st.QtyOnHand = dec(12)
	f.db.state.stock[key] = st
	f.db.mu.Unlock()

	report, err := f.stock.Reconcile(ctx, f.store.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, f.cement.ID, report.Discrepancies[0].MaterialID)
	assert.True(t, report.Discrepancies[0].Drift.Equal(dec(2)))

	report, err = f.stock.Reconcile(ctx, "", f.sand.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Discrepancies)

	_, err = f.stock.Reconcile(ctx, "not-a-uuid", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
