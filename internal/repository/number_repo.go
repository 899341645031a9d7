package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Document number prefixes.
const (
	PrefixRequest       = "REQ"
	PrefixIssue         = "ISS"
	PrefixPurchaseOrder = "PO"
	PrefixGoodsReceipt  = "GRN"
	PrefixAdjustment    = "ADJ"
)

var numberColumns = map[string]struct{ table, column string }{
	PrefixRequest:       {"requests", "code"},
	PrefixIssue:         {"issues", "number"},
	PrefixPurchaseOrder: {"purchase_orders", "number"},
	PrefixGoodsReceipt:  {"goods_receipts", "number"},
	PrefixAdjustment:    {"stock_adjustments", "number"},
}

// NumberGenerator hands out daily document numbers like REQ-20240131-00007.
type NumberGenerator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

type numberGenerator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewNumberGenerator(db *gorm.DB) NumberGenerator {
	return &numberGenerator{db: db, now: time.Now}
}

// Next must run inside a transaction: the advisory lock is held until commit so two
// writers can never read the same count.
func (g *numberGenerator) Next(ctx context.Context, prefix string) (string, error) {
	target, ok := numberColumns[prefix]
	if !ok {
		return "", fmt.Errorf("unknown document prefix %q", prefix)
	}
	full := prefix + "-" + g.now().Format("20060102") + "-"

	db := GetDB(ctx, g.db)
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", full).Error; err != nil {
		return "", err
	}

	var count int64
	if err := db.Table(target.table).
		Where(target.column+" LIKE ?", full+"%").
		Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", full, count+1), nil
}
