package repository

import (
	"context"

	"requisition-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IssueRepository interface {
	Create(ctx context.Context, issue *model.Issue) error
	CreateItem(ctx context.Context, item *model.IssueItem) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Issue, error)
}

type issueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

// Create inserts the issue header only; lines are added with CreateItem once their
// stock movement exists.
func (r *issueRepository) Create(ctx context.Context, issue *model.Issue) error {
	return translate(GetDB(ctx, r.db).Omit("Issuer", "Items").Create(issue).Error)
}

func (r *issueRepository) CreateItem(ctx context.Context, item *model.IssueItem) error {
	return translate(GetDB(ctx, r.db).Create(item).Error)
}

func (r *issueRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Issue, error) {
	var issues []model.Issue
	err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Issuer").
		Where("request_id = ?", requestID).
		Order("created_at asc").
		Find(&issues).Error
	if err != nil {
		return nil, err
	}
	return issues, nil
}
