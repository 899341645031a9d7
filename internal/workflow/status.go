// Package workflow holds the material request lifecycle: the closed set of request
// statuses, the review levels and actions, and the table of legal transitions.
package workflow

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a material request.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusSubmitted           Status = "SUBMITTED"
	StatusDSEReview           Status = "DSE_REVIEW"
	StatusWaitingPadiriReview Status = "WAITING_PADIRI_REVIEW"
	StatusApproved            Status = "APPROVED"
	StatusVerified            Status = "VERIFIED"
	StatusIssuedFromApproved  Status = "ISSUED_FROM_APPROVED"
	StatusPartiallyIssued     Status = "PARTIALLY_ISSUED"
	StatusIssued              Status = "ISSUED"
	StatusReceived            Status = "RECEIVED"
	StatusRejected            Status = "REJECTED"
	StatusClosed              Status = "CLOSED"
)

var statuses = []Status{
	StatusPending,
	StatusSubmitted,
	StatusDSEReview,
	StatusWaitingPadiriReview,
	StatusApproved,
	StatusVerified,
	StatusIssuedFromApproved,
	StatusPartiallyIssued,
	StatusIssued,
	StatusReceived,
	StatusRejected,
	StatusClosed,
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusClosed
}

// Issuable reports whether stock may be issued against the request.
func (s Status) Issuable() bool {
	switch s {
	case StatusApproved, StatusVerified, StatusIssuedFromApproved, StatusPartiallyIssued:
		return true
	}
	return false
}

// InReview reports whether the request is waiting on a reviewer.
func (s Status) InReview() bool {
	switch s {
	case StatusSubmitted, StatusDSEReview, StatusWaitingPadiriReview:
		return true
	}
	return false
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown request status %q", v)
	}
	return s, nil
}

// Level is a review level in the approval chain.
type Level string

const (
	LevelDSE    Level = "DSE"
	LevelPadiri Level = "PADIRI"
)

func (l Level) Valid() bool {
	return l == LevelDSE || l == LevelPadiri
}

func ParseLevel(v string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(v)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown review level %q", v)
	}
	return l, nil
}

// Action is the decision a reviewer records on a request.
type Action string

const (
	ActionApproved     Action = "APPROVED"
	ActionRejected     Action = "REJECTED"
	ActionVerified     Action = "VERIFIED"
	ActionModified     Action = "MODIFIED"
	ActionNeedsChanges Action = "NEEDS_CHANGES"
)

var actions = []Action{ActionApproved, ActionRejected, ActionVerified, ActionModified, ActionNeedsChanges}

// Actions returns every review action.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

func (a Action) Valid() bool {
	for _, v := range actions {
		if v == a {
			return true
		}
	}
	return false
}

// Approves reports whether the action moves the request forward and fixes approved quantities.
func (a Action) Approves() bool {
	return a == ActionApproved || a == ActionVerified || a == ActionModified
}

func ParseAction(v string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(v)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown review action %q", v)
	}
	return a, nil
}
