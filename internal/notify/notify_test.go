package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pursuit-ops/isochroned/pkg/streaming"
)

type recorder struct {
	events []streaming.Event
	err    error
	closed bool
}

func (r *recorder) Notify(_ context.Context, e streaming.Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return r.err
}

func TestMulti_NotifiesEveryone(t *testing.T) {
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}
	m := Multi{failing, ok}

	err := m.Notify(context.Background(), streaming.Event{ID: "e1", Type: streaming.TypeTrackStopped})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)

	assert.Error(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Notify(context.Background(), streaming.Event{}))
	assert.NoError(t, n.Close())
}
