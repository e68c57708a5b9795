package observability

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricReparseScheduled = "sqltree.reparse.scheduled"
	metricReparseCoalesced = "sqltree.reparse.coalesced"
	metricReparseStale     = "sqltree.reparse.stale"
	metricReparseDropped   = "sqltree.reparse.dropped"
)

// ReparseMetrics counts debounce decisions of the reparse scheduler.
// A nil *ReparseMetrics records nothing.
type ReparseMetrics struct {
	scheduled metric.Int64Counter
	coalesced metric.Int64Counter
	stale     metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewReparseMetrics creates the scheduler counters from the given meter.
func NewReparseMetrics(mt metric.Meter) (*ReparseMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &ReparseMetrics{
		scheduled: b.counter(metricReparseScheduled, "Edits accepted for reparse", "{edit}"),
		coalesced: b.counter(metricReparseCoalesced, "Pending edits superseded before their reparse ran", "{edit}"),
		stale:     b.counter(metricReparseStale, "Reparse results discarded as stale", "{reparse}"),
		dropped:   b.counter(metricReparseDropped, "Reparses dropped because the parser was not ready", "{reparse}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// Scheduled counts an accepted edit.
func (rm *ReparseMetrics) Scheduled(ctx context.Context) {
	if rm != nil {
		rm.scheduled.Add(ctx, 1)
	}
}

// Coalesced counts a pending edit replaced by a newer one.
func (rm *ReparseMetrics) Coalesced(ctx context.Context) {
	if rm != nil {
		rm.coalesced.Add(ctx, 1)
	}
}

// Stale counts a discarded out-of-order result.
func (rm *ReparseMetrics) Stale(ctx context.Context) {
	if rm != nil {
		rm.stale.Add(ctx, 1)
	}
}

// Dropped counts a reparse skipped while the parser was loading.
func (rm *ReparseMetrics) Dropped(ctx context.Context) {
	if rm != nil {
		rm.dropped.Add(ctx, 1)
	}
}
