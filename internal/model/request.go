package model

import (
	"time"

	"requisition-backend/internal/ledger"
	"requisition-backend/internal/workflow"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request is a material requisition raised by a site against a store.
type Request struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code        string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	SiteID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"site_id"`
	Site        *Site           `gorm:"foreignKey:SiteID;constraint:OnDelete:RESTRICT;" json:"site,omitempty"`
	StoreID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"store_id"`
	Store       *Store          `gorm:"foreignKey:StoreID;constraint:OnDelete:RESTRICT;" json:"store,omitempty"`
	RequestedBy uuid.UUID       `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester   *User           `gorm:"foreignKey:RequestedBy;constraint:OnDelete:RESTRICT;" json:"requester,omitempty"`
	Status      workflow.Status `gorm:"type:request_status;not null;default:'PENDING';index" json:"status"`
	Purpose     string          `gorm:"type:text" json:"purpose"`
	NeededBy    *time.Time      `json:"needed_by"`
	SubmittedAt *time.Time      `json:"submitted_at"`
	ClosedAt    *time.Time      `json:"closed_at"`
	Items       []RequestItem   `gorm:"foreignKey:RequestID" json:"items"`
	Approvals   []Approval      `gorm:"foreignKey:RequestID" json:"approvals,omitempty"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Progress returns the issuance state of every item.
func (r *Request) Progress() []workflow.ItemProgress {
	out := make([]workflow.ItemProgress, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, workflow.ItemProgress{Approved: it.ApprovedQty(), Issued: it.QtyIssued})
	}
	return out
}

// FullyReceived reports whether every issued quantity was confirmed by the site.
func (r *Request) FullyReceived() bool {
	for _, it := range r.Items {
		if it.QtyReceived.LessThan(it.QtyIssued) {
			return false
		}
	}
	return true
}

// HasApprovedQty reports whether at least one line has something left to issue against.
func (r *Request) HasApprovedQty() bool {
	for _, it := range r.Items {
		if it.ApprovedQty().IsPositive() {
			return true
		}
	}
	return false
}

// RequestItem is one material line of a request.
type RequestItem struct {
	ID           uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"request_id"`
	MaterialID   uuid.UUID           `gorm:"type:uuid;not null;index" json:"material_id"`
	Material     *Material           `gorm:"foreignKey:MaterialID;constraint:OnDelete:RESTRICT;" json:"material,omitempty"`
	UnitID       uuid.UUID           `gorm:"type:uuid;not null" json:"unit_id"`
	Unit         *Unit               `gorm:"foreignKey:UnitID;constraint:OnDelete:RESTRICT;" json:"unit,omitempty"`
	QtyRequested decimal.Decimal     `gorm:"type:numeric(14,3);not null" json:"qty_requested"`
	QtyApproved  decimal.NullDecimal `gorm:"type:numeric(14,3)" json:"qty_approved"`
	QtyIssued    decimal.Decimal     `gorm:"type:numeric(14,3);not null;default:0" json:"qty_issued"`
	QtyRemaining decimal.Decimal     `gorm:"type:numeric(14,3);not null;default:0" json:"qty_remaining"`
	QtyReceived  decimal.Decimal     `gorm:"type:numeric(14,3);not null;default:0" json:"qty_received"`
	Note         string              `gorm:"type:text" json:"note"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ApprovedQty is the approved quantity, zero while unreviewed.
func (it *RequestItem) ApprovedQty() decimal.Decimal {
	if !it.QtyApproved.Valid {
		return decimal.Zero
	}
	return it.QtyApproved.Decimal
}

func (it *RequestItem) checkScale(qty decimal.Decimal) error {
	if ledger.FitsScale(qty, ledger.QtyScale) {
		return nil
	}
	return apperror.Validationf("quantity has more than %d decimal places", ledger.QtyScale).
		With("request_item_id", it.ID).
		With("qty", qty.String())
}

// Approve fixes the approved quantity. It can never drop below what was already issued.
func (it *RequestItem) Approve(qty decimal.Decimal) error {
	if qty.IsNegative() {
		return apperror.Validation("approved quantity cannot be negative").With("request_item_id", it.ID)
	}
	if err := it.checkScale(qty); err != nil {
		return err
	}
	if qty.LessThan(it.QtyIssued) {
		return apperror.Validation("approved quantity is below the quantity already issued").
			With("request_item_id", it.ID).
			With("qty_issued", it.QtyIssued.String())
	}
	it.QtyApproved = decimal.NewNullDecimal(qty)
	it.QtyRemaining = qty.Sub(it.QtyIssued)
	return nil
}

// ApplyIssue adds qty to the issued total. It fails with OverIssue, leaving the item
// untouched, when the total would exceed the approved quantity.
func (it *RequestItem) ApplyIssue(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return apperror.Validation("issue quantity must be greater than zero").With("request_item_id", it.ID)
	}
	if err := it.checkScale(qty); err != nil {
		return err
	}
	if !it.QtyApproved.Valid {
		return apperror.Validation("item has no approved quantity").With("request_item_id", it.ID)
	}
	approved := it.QtyApproved.Decimal
	if it.QtyIssued.Add(qty).GreaterThan(approved) {
		return apperror.OverIssue(it.ID, approved, it.QtyIssued, qty)
	}
	it.QtyIssued = it.QtyIssued.Add(qty)
	it.QtyRemaining = approved.Sub(it.QtyIssued)
	return nil
}

// ApplyReceipt records quantity confirmed by the consuming site.
func (it *RequestItem) ApplyReceipt(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return apperror.Validation("received quantity must be greater than zero").With("request_item_id", it.ID)
	}
	if err := it.checkScale(qty); err != nil {
		return err
	}
	if it.QtyReceived.Add(qty).GreaterThan(it.QtyIssued) {
		return apperror.Validation("received quantity exceeds issued quantity").
			With("request_item_id", it.ID).
			With("qty_issued", it.QtyIssued.String()).
			With("qty_received", it.QtyReceived.String())
	}
	it.QtyReceived = it.QtyReceived.Add(qty)
	return nil
}

// Approval is an immutable reviewer decision.
type Approval struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"request_id"`
	Level      workflow.Level  `gorm:"type:approval_level;not null" json:"level"`
	ReviewerID uuid.UUID       `gorm:"type:uuid;not null;index" json:"reviewer_id"`
	Reviewer   *User           `gorm:"foreignKey:ReviewerID;constraint:OnDelete:RESTRICT;" json:"reviewer,omitempty"`
	Action     workflow.Action `gorm:"type:approval_action;not null" json:"action"`
	Comment    string          `gorm:"type:text" json:"comment"`
	FromStatus workflow.Status `gorm:"type:request_status;not null" json:"from_status"`
	ToStatus   workflow.Status `gorm:"type:request_status;not null" json:"to_status"`
	CreatedAt  time.Time       `gorm:"index" json:"created_at"`
}
