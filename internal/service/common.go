package service

import (
	"context"
	"encoding/json"
	"fmt"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// parseID parses a path or body identifier, failing with a Validation error naming field.
func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validationf("invalid %s", field).With(field, raw)
	}
	return id, nil
}

// parseOptionalID returns nil for an empty string.
func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// checkQty requires a positive quantity that fits the stored scale.
func checkQty(field string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return apperror.Validationf("%s must be greater than zero", field)
	}
	if !ledger.FitsScale(qty, ledger.QtyScale) {
		return apperror.Validationf("%s has more than %d decimal places", field, ledger.QtyScale).With(field, qty.String())
	}
	return nil
}

// actorID turns the authenticated user id into the nullable audit column.
func actorID(userID uuid.UUID) *uuid.UUID {
	if userID == uuid.Nil {
		return nil
	}
	return &userID
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return page, limit
}

// audit appends one audit row inside the caller's transaction.
type audit struct {
	repo repository.AuditRepository
}

func (a audit) log(ctx context.Context, userID uuid.UUID, action, entityType, entityID, entityName string, details interface{}) error {
	body, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := &model.AuditLog{
		UserID:     actorID(userID),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(body),
	}
	if err := a.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
