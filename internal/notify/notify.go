// Package notify delivers track events to mission subscribers.
package notify

import (
	"context"
	"errors"

	"github.com/pursuit-ops/isochroned/pkg/streaming"
)

// Notifier publishes track events.
type Notifier interface {
	Notify(ctx context.Context, e streaming.Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, streaming.Event) error { return nil }
func (Nop) Close() error                                  { return nil }

// Multi fans an event out to several notifiers. Every notifier is tried;
// errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e streaming.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
