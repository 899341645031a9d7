package workflow

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a trigger is not legal from the current status.
var ErrInvalidTransition = errors.New("invalid transition")

// Step names a lifecycle trigger. Review decisions use StepReview together with a Level and Action.
type Step string

const (
	StepSubmit      Step = "SUBMIT"
	StepStartReview Step = "START_REVIEW"
	StepReview      Step = "REVIEW"
	StepOpenIssue   Step = "OPEN_ISSUE"
	StepReceive     Step = "RECEIVE"
	StepClose       Step = "CLOSE"
)

// Trigger is one attempted lifecycle move.
type Trigger struct {
	Step   Step   `json:"step"`
	Level  Level  `json:"level,omitempty"`
	Action Action `json:"action,omitempty"`
}

func On(step Step) Trigger {
	return Trigger{Step: step}
}

func Review(level Level, action Action) Trigger {
	return Trigger{Step: StepReview, Level: level, Action: action}
}

func (t Trigger) String() string {
	if t.Step == StepReview {
		return fmt.Sprintf("%s %s", t.Level, t.Action)
	}
	return string(t.Step)
}

type transitionKey struct {
	from    Status
	trigger Trigger
}

// Transition is one row of the lifecycle table.
type Transition struct {
	From    Status  `json:"from"`
	Trigger Trigger `json:"trigger"`
	To      Status  `json:"to"`
}

var table = map[transitionKey]Status{}

// order keeps Allowed deterministic.
var order []Transition

func add(to Status, trigger Trigger, from ...Status) {
	for _, f := range from {
		table[transitionKey{from: f, trigger: trigger}] = to
		order = append(order, Transition{From: f, Trigger: trigger, To: to})
	}
}

func init() {
	add(StatusSubmitted, On(StepSubmit), StatusPending)
	add(StatusDSEReview, On(StepStartReview), StatusSubmitted)

	dseQueue := []Status{StatusSubmitted, StatusDSEReview}
	add(StatusWaitingPadiriReview, Review(LevelDSE, ActionApproved), dseQueue...)
	add(StatusWaitingPadiriReview, Review(LevelDSE, ActionVerified), dseQueue...)
	add(StatusWaitingPadiriReview, Review(LevelDSE, ActionModified), dseQueue...)
	add(StatusRejected, Review(LevelDSE, ActionRejected), dseQueue...)
	for _, s := range dseQueue {
		add(s, Review(LevelDSE, ActionNeedsChanges), s)
	}

	add(StatusApproved, Review(LevelPadiri, ActionApproved), StatusWaitingPadiriReview)
	add(StatusApproved, Review(LevelPadiri, ActionModified), StatusWaitingPadiriReview)
	add(StatusVerified, Review(LevelPadiri, ActionVerified), StatusWaitingPadiriReview)
	add(StatusRejected, Review(LevelPadiri, ActionRejected), StatusWaitingPadiriReview)
	add(StatusWaitingPadiriReview, Review(LevelPadiri, ActionNeedsChanges), StatusWaitingPadiriReview)

	add(StatusIssuedFromApproved, On(StepOpenIssue), StatusApproved, StatusVerified)

	add(StatusReceived, On(StepReceive), StatusIssued)
	add(StatusClosed, On(StepClose), StatusReceived)
}

// Next returns the status reached by applying trigger to from.
func Next(from Status, trigger Trigger) (Status, error) {
	if from.Terminal() {
		return "", fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	to, ok := table[transitionKey{from: from, trigger: trigger}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, from)
	}
	return to, nil
}

// Allowed lists the transitions legal from the given status.
func Allowed(from Status) []Transition {
	var out []Transition
	for _, t := range order {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// Transitions returns the full lifecycle table.
func Transitions() []Transition {
	out := make([]Transition, len(order))
	copy(out, order)
	return out
}

// LevelFor reports which review level acts on a request in the given status.
func LevelFor(s Status) (Level, bool) {
	switch s {
	case StatusSubmitted, StatusDSEReview:
		return LevelDSE, true
	case StatusWaitingPadiriReview:
		return LevelPadiri, true
	}
	return "", false
}

// ItemProgress is the issuance state of one request item.
type ItemProgress struct {
	Approved decimal.Decimal
	Issued   decimal.Decimal
}

// Progress summarizes issuance across all items of a request.
type Progress int

const (
	ProgressNone Progress = iota
	ProgressPartial
	ProgressComplete
)

// ProgressOf classifies issuance. An item is satisfied once issued reaches approved.
func ProgressOf(items []ItemProgress) Progress {
	if len(items) == 0 {
		return ProgressNone
	}
	satisfied, touched := 0, 0
	for _, it := range items {
		if it.Issued.GreaterThanOrEqual(it.Approved) {
			satisfied++
		}
		if it.Issued.IsPositive() {
			touched++
		}
	}
	switch {
	case satisfied == len(items):
		return ProgressComplete
	case touched > 0:
		return ProgressPartial
	default:
		return ProgressNone
	}
}

// AfterIssuance returns the aggregate status once stock was issued against a request.
func AfterIssuance(from Status, p Progress) (Status, error) {
	if !from.Issuable() {
		return "", fmt.Errorf("%w: cannot issue from %s", ErrInvalidTransition, from)
	}
	switch p {
	case ProgressComplete:
		return StatusIssued, nil
	case ProgressPartial:
		return StatusPartiallyIssued, nil
	}
	if from == StatusApproved || from == StatusVerified {
		return StatusIssuedFromApproved, nil
	}
	return from, nil
}

// AfterReceipt returns the statuses a request passes through when the site confirms
// receipt. A complete receipt closes the request automatically.
func AfterReceipt(from Status, complete bool) ([]Status, error) {
	var path []Status
	current := from
	if current == StatusIssued {
		next, err := Next(current, On(StepReceive))
		if err != nil {
			return nil, err
		}
		path = append(path, next)
		current = next
	}
	if current != StatusReceived {
		return nil, fmt.Errorf("%w: cannot receive from %s", ErrInvalidTransition, from)
	}
	if complete {
		next, err := Next(current, On(StepClose))
		if err != nil {
			return nil, err
		}
		path = append(path, next)
	}
	return path, nil
}
