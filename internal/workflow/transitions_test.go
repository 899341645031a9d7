package workflow

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		trigger Trigger
		want    Status
		wantErr bool
	}{
		{name: "submit draft", from: StatusPending, trigger: On(StepSubmit), want: StatusSubmitted},
		{name: "start dse review", from: StatusSubmitted, trigger: On(StepStartReview), want: StatusDSEReview},
		{name: "dse approves", from: StatusDSEReview, trigger: Review(LevelDSE, ActionApproved), want: StatusWaitingPadiriReview},
		{name: "dse verifies straight from queue", from: StatusSubmitted, trigger: Review(LevelDSE, ActionVerified), want: StatusWaitingPadiriReview},
		{name: "dse modifies", from: StatusDSEReview, trigger: Review(LevelDSE, ActionModified), want: StatusWaitingPadiriReview},
		{name: "dse rejects", from: StatusDSEReview, trigger: Review(LevelDSE, ActionRejected), want: StatusRejected},
		{name: "dse needs changes keeps status", from: StatusDSEReview, trigger: Review(LevelDSE, ActionNeedsChanges), want: StatusDSEReview},
		{name: "padiri approves", from: StatusWaitingPadiriReview, trigger: Review(LevelPadiri, ActionApproved), want: StatusApproved},
		{name: "padiri verifies", from: StatusWaitingPadiriReview, trigger: Review(LevelPadiri, ActionVerified), want: StatusVerified},
		{name: "padiri rejects", from: StatusWaitingPadiriReview, trigger: Review(LevelPadiri, ActionRejected), want: StatusRejected},
		{name: "open issue", from: StatusApproved, trigger: On(StepOpenIssue), want: StatusIssuedFromApproved},
		{name: "receive", from: StatusIssued, trigger: On(StepReceive), want: StatusReceived},
		{name: "close", from: StatusReceived, trigger: On(StepClose), want: StatusClosed},

		{name: "submit twice", from: StatusSubmitted, trigger: On(StepSubmit), wantErr: true},
		{name: "padiri acting at dse stage", from: StatusDSEReview, trigger: Review(LevelPadiri, ActionApproved), wantErr: true},
		{name: "dse acting at padiri stage", from: StatusWaitingPadiriReview, trigger: Review(LevelDSE, ActionApproved), wantErr: true},
		{name: "close before receipt", from: StatusIssued, trigger: On(StepClose), wantErr: true},
		{name: "receive before issue", from: StatusApproved, trigger: On(StepReceive), wantErr: true},
		{name: "rejected is terminal", from: StatusRejected, trigger: On(StepSubmit), wantErr: true},
		{name: "closed is terminal", from: StatusClosed, trigger: On(StepReceive), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.trigger)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatusesHaveNoOutgoingTransitions(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusClosed} {
		assert.Empty(t, Allowed(s), s)
		for _, tr := range Transitions() {
			_, err := Next(s, tr.Trigger)
			assert.Error(t, err)
		}
	}
}

func TestClosedOnlyReachableFromReceived(t *testing.T) {
	for _, tr := range Transitions() {
		if tr.To == StatusClosed {
			assert.Equal(t, StatusReceived, tr.From)
		}
	}
}

func TestEveryNonTerminalStatusHasAWayForward(t *testing.T) {
	for _, s := range Statuses() {
		if s.Terminal() {
			continue
		}
		if s.Issuable() {
			// issuance is driven by AfterIssuance rather than the table
			continue
		}
		assert.NotEmpty(t, Allowed(s), s)
	}
}

func TestProgressOf(t *testing.T) {
	d := decimal.NewFromInt
	tests := []struct {
		name  string
		items []ItemProgress
		want  Progress
	}{
		{name: "nothing issued", items: []ItemProgress{{Approved: d(10)}, {Approved: d(5)}}, want: ProgressNone},
		{name: "one item partly issued", items: []ItemProgress{{Approved: d(10), Issued: d(4)}, {Approved: d(5)}}, want: ProgressPartial},
		{name: "one item fully issued", items: []ItemProgress{{Approved: d(10), Issued: d(10)}, {Approved: d(5)}}, want: ProgressPartial},
		{name: "all satisfied", items: []ItemProgress{{Approved: d(10), Issued: d(10)}, {Approved: d(5), Issued: d(5)}}, want: ProgressComplete},
		{name: "zero approved counts as satisfied", items: []ItemProgress{{Approved: d(10), Issued: d(10)}, {Approved: d(0)}}, want: ProgressComplete},
		{name: "no items", want: ProgressNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressOf(tt.items))
		})
	}
}

func TestAfterIssuance(t *testing.T) {
	got, err := AfterIssuance(StatusApproved, ProgressPartial)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyIssued, got)

	got, err = AfterIssuance(StatusPartiallyIssued, ProgressComplete)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, got)

	got, err = AfterIssuance(StatusVerified, ProgressNone)
	require.NoError(t, err)
	assert.Equal(t, StatusIssuedFromApproved, got)

	_, err = AfterIssuance(StatusIssued, ProgressComplete)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = AfterIssuance(StatusWaitingPadiriReview, ProgressPartial)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAfterReceipt(t *testing.T) {
	path, err := AfterReceipt(StatusIssued, true)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusReceived, StatusClosed}, path)

	path, err = AfterReceipt(StatusIssued, false)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusReceived}, path)

	path, err = AfterReceipt(StatusReceived, true)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusClosed}, path)

	_, err = AfterReceipt(StatusPartiallyIssued, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParse(t *testing.T) {
	s, err := ParseStatus(" waiting_padiri_review ")
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingPadiriReview, s)

	_, err = ParseStatus("DRAFT")
	assert.Error(t, err)

	l, err := ParseLevel("padiri")
	require.NoError(t, err)
	assert.Equal(t, LevelPadiri, l)

	a, err := ParseAction("needs_changes")
	require.NoError(t, err)
	assert.Equal(t, ActionNeedsChanges, a)
	assert.False(t, a.Approves())

	_, err = ParseAction("ESCALATED")
	assert.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	l, ok := LevelFor(StatusDSEReview)
	assert.True(t, ok)
	assert.Equal(t, LevelDSE, l)

	l, ok = LevelFor(StatusWaitingPadiriReview)
	assert.True(t, ok)
	assert.Equal(t, LevelPadiri, l)

	_, ok = LevelFor(StatusApproved)
	assert.False(t, ok)
}
