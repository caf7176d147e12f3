package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns attributes added to every record, such as the
// build version.
type ContextProvider func() []slog.Attr

type ctxAttrsKey struct{}

// ContextWith returns a copy of ctx carrying attrs. Records logged with
// that ctx through a SlogManager logger include them.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev := AttrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

// WithTrack tags ctx with the track being computed and its mission.
func WithTrack(ctx context.Context, trackID, missionID uint) context.Context {
	return ContextWith(ctx,
		slog.Uint64("track", uint64(trackID)),
		slog.Uint64("mission", uint64(missionID)),
	)
}

// AttrsFromContext returns the attributes carried by ctx.
func AttrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

// contextHandler adds the attributes carried by the record's ctx and those
// of an optional static provider.
type contextHandler struct {
	inner  slog.Handler
	static ContextProvider
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(AttrsFromContext(ctx)...)
	if h.static != nil {
		r.AddAttrs(h.static()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs), static: h.static}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &contextHandler{inner: h.inner.WithGroup(name), static: h.static}
}

// teeHandler writes each record to every enabled sink: the log file and,
// when configured, the OTel bridge.
type teeHandler []slog.Handler

func newTeeHandler(sinks ...slog.Handler) slog.Handler {
	tee := make(teeHandler, 0, len(sinks))
	for _, h := range sinks {
		if h != nil {
			tee = append(tee, h)
		}
	}
	if len(tee) == 1 {
		return tee[0]
	}
	return tee
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to every sink even when one fails and reports all failures.
func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
