package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// SourceType names the kind of document a stock movement points at.
type SourceType string

const (
	SourceGRN        SourceType = "GRN"
	SourceIssue      SourceType = "ISSUE"
	SourceAdjustment SourceType = "ADJUSTMENT"
)

func (t SourceType) Valid() bool {
	return t == SourceGRN || t == SourceIssue || t == SourceAdjustment
}

// SourceRef is the document that caused a movement. It is a closed set:
// GRNRef, IssueRef and AdjustmentRef are the only implementations.
type SourceRef interface {
	SourceType() SourceType
	SourceID() uuid.UUID
	isSourceRef()
}

// GRNRef points at a goods receipt note.
type GRNRef struct{ ID uuid.UUID }

// IssueRef points at an issue document raised against a material request.
type IssueRef struct{ ID uuid.UUID }

// AdjustmentRef points at a stock adjustment document.
type AdjustmentRef struct{ ID uuid.UUID }

func (r GRNRef) SourceType() SourceType { return SourceGRN }
func (r GRNRef) SourceID() uuid.UUID { return r.ID }
func (GRNRef) isSourceRef() {}
func (r IssueRef) SourceType() SourceType { return SourceIssue }
func (r IssueRef) SourceID() uuid.UUID { return r.ID }
func (IssueRef) isSourceRef() {}
func (r AdjustmentRef) SourceType() SourceType { return SourceAdjustment }
func (r AdjustmentRef) SourceID() uuid.UUID { return r.ID }
func (AdjustmentRef) isSourceRef() {}

// RefFromColumns rebuilds a SourceRef from its persisted (source_type, source_id) pair.
func RefFromColumns(t SourceType, id uuid.UUID) (SourceRef, error) {
	switch t {
	case SourceGRN:
		return GRNRef{ID: id}, nil
	case SourceIssue:
		return IssueRef{ID: id}, nil
	case SourceAdjustment:
		return AdjustmentRef{ID: id}, nil
	}
	return nil, fmt.Errorf("unknown movement source type %q", t)
}
