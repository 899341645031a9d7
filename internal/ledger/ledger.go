// Package ledger implements the arithmetic of the stock ledger: which movements are
// legal, their signed effect on a balance, and reconciliation of a balance against
// the movements that produced it.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MovementType is the direction class of a stock movement.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut || t == MovementAdjustment
}

func ParseMovementType(v string) (MovementType, error) {
	t := MovementType(strings.ToUpper(strings.TrimSpace(v)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown movement type %q", v)
	}
	return t, nil
}

// Direction is the intent of an ADJUSTMENT movement.
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

func ParseDirection(v string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(v)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown adjustment direction %q", v)
	}
	return d, nil
}

// Quantities are stored as numeric(14,3) and prices as numeric(14,2). Values with
// more fractional digits would be rounded by the database, so they are refused.
const (
	QtyScale   int32 = 3
	PriceScale int32 = 2
)

// FitsScale reports whether d has at most places fractional digits, ignoring trailing zeros.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

var (
	ErrNonPositiveQty    = errors.New("quantity must be greater than zero")
	ErrQtyPrecision      = errors.New("quantity has more than 3 decimal places")
	ErrIllegalSource     = errors.New("source is not allowed for this movement type")
	ErrDirection         = errors.New("adjustment direction is required for ADJUSTMENT and forbidden otherwise")
	ErrInsufficientStock = errors.New("insufficient stock")
)

var allowedSources = map[MovementType][]SourceType{
	MovementIn:         {SourceGRN, SourceAdjustment},
	MovementOut:        {SourceIssue, SourceAdjustment},
	MovementAdjustment: {SourceAdjustment},
}

// Entry is one ledger line before it is persisted.
type Entry struct {
	Type      MovementType
	Direction Direction
	Source    SourceRef
	Qty       decimal.Decimal
}

// Validate checks the entry in isolation. Balance checks happen in Apply.
func (e Entry) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown movement type %q", e.Type)
	}
	if !e.Qty.IsPositive() {
		return ErrNonPositiveQty
	}
	if !FitsScale(e.Qty, QtyScale) {
		return ErrQtyPrecision
	}
	if e.Source == nil {
		return fmt.Errorf("%w: missing source", ErrIllegalSource)
	}
	legal := false
	for _, st := range allowedSources[e.Type] {
		if st == e.Source.SourceType() {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: %s from %s", ErrIllegalSource, e.Type, e.Source.SourceType())
	}
	if e.Type == MovementAdjustment {
		if !e.Direction.Valid() {
			return ErrDirection
		}
	} else if e.Direction != "" {
		return ErrDirection
	}
	return nil
}

// Delta is the signed effect of the entry on the balance.
func (e Entry) Delta() decimal.Decimal {
	switch {
	case e.Type == MovementIn:
		return e.Qty
	case e.Type == MovementOut:
		return e.Qty.Neg()
	case e.Type == MovementAdjustment && e.Direction == DirectionDecrease:
		return e.Qty.Neg()
	default:
		return e.Qty
	}
}

// Policy controls what balances the ledger accepts.
type Policy struct {
	AllowNegative bool
}

// Apply returns the balance after the entry, or ErrInsufficientStock when the entry
// would take the balance below zero and the policy forbids it.
func (p Policy) Apply(balance decimal.Decimal, e Entry) (decimal.Decimal, error) {
	if err := e.Validate(); err != nil {
		return balance, err
	}
	next := balance.Add(e.Delta())
	if next.IsNegative() && !p.AllowNegative {
		return balance, ErrInsufficientStock
	}
	return next, nil
}

// Sum is the signed total of entries, the balance they reconstruct from zero.
func Sum(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Delta())
	}
	return total
}

// Discrepancy describes a balance that disagrees with its ledger.
type Discrepancy struct {
	OnHand    decimal.Decimal `json:"qty_on_hand"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Drift     decimal.Decimal `json:"drift"`
}

// Reconcile compares a materialized balance with the ledger sum.
func Reconcile(onHand, ledgerSum decimal.Decimal) (Discrepancy, bool) {
	d := Discrepancy{OnHand: onHand, LedgerSum: ledgerSum, Drift: onHand.Sub(ledgerSum)}
	return d, d.Drift.IsZero()
}
