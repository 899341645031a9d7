package repository

import (
	"context"
	"errors"
	"time"

	"requisition-backend/internal/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
}

// NewTransactionManager returns a manager that reruns the whole transaction, up to
// maxRetries times, when PostgreSQL aborts it with a serialization failure or deadlock.
func NewTransactionManager(db *gorm.DB, maxRetries int) TransactionManager {
	return &transactionManager{db: db, maxRetries: maxRetries, backoff: 20 * time.Millisecond}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	// join the caller's transaction
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	for attempt := 0; ; attempt++ {
		err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txCtx := context.WithValue(ctx, txKey, tx)
			return fn(txCtx)
		})
		if err == nil || !IsRetryable(err) || attempt >= t.maxRetries {
			return err
		}

		logger.Warn("[RunInTx] retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.backoff * time.Duration(attempt+1)):
		}
	}
}

// IsRetryable reports whether err is a transient conflict the whole transaction can be rerun for.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
