package scheduler

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pursuit-ops/isochroned/internal/scheduler"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	ticks        metric.Int64Counter
	dropped      metric.Int64Counter
	computations metric.Int64Counter
	fallbacks    metric.Int64Counter
	duration     metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	m := meter()
	out := &metrics{}

	var err error
	out.ticks, err = m.Int64Counter(
		"scheduler.ticks",
		metric.WithDescription("Total ticks run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	out.dropped, err = m.Int64Counter(
		"scheduler.ticks.dropped",
		metric.WithDescription("Total ticks dropped because a previous tick was still running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	out.computations, err = m.Int64Counter(
		"scheduler.computations",
		metric.WithDescription("Total isochrone computations persisted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating computations counter: %w", err)
	}

	out.fallbacks, err = m.Int64Counter(
		"scheduler.fallbacks",
		metric.WithDescription("Total computations replaced by the circle estimate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fallbacks counter: %w", err)
	}

	out.duration, err = m.Float64Histogram(
		"scheduler.compute.duration",
		metric.WithDescription("Strategy computation time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return out, nil
}
