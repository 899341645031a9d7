package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("broker down")}

	err := Multi{ok, failing}.Publish(context.Background(), New(RequestCreated, map[string]string{"code": "REQ-1"}))

	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
	assert.Equal(t, RequestCreated, ok.got[0].Type)
}

func TestPublishAll_KeepsOrderAndSwallowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("nope")}

	PublishAll(context.Background(), r,
		New(RequestStatusChanged, nil),
		New(RequestItemIssued, nil),
	)

	assert.Equal(t, []string{RequestStatusChanged, RequestItemIssued}, []string{r.got[0].Type, r.got[1].Type})
	PublishAll(context.Background(), nil, New(RequestCreated, nil))
	assert.NoError(t, Nop{}.Publish(context.Background(), New(RequestCreated, nil)))
}
