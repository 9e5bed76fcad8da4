package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all dlboard metrics instruments.
type Metrics struct {
	SnapshotDuration metric.Float64Histogram
	EventsApplied    metric.Int64Counter
	EventsSkipped    metric.Int64Counter
	EventsDropped    metric.Int64Counter
	DeletesConfirmed metric.Int64Counter
	DeletesMissing   metric.Int64Counter
	DeletesFailed    metric.Int64Counter
	EditsApplied     metric.Int64Counter
	EditsRejected    metric.Int64Counter
	Resyncs          metric.Int64Counter
	StreamReconnects metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SnapshotDuration, err = meter.Float64Histogram("dlboard.snapshot.duration",
		metric.WithDescription("Bulk read duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsApplied, err = meter.Int64Counter("dlboard.events.applied",
		metric.WithDescription("Stream events applied to the local table"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsSkipped, err = meter.Int64Counter("dlboard.events.skipped",
		metric.WithDescription("Stream events targeting unknown or duplicate records"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("dlboard.events.dropped",
		metric.WithDescription("Stream events of unhandled types"),
	)
	if err != nil {
		return nil, err
	}

	m.DeletesConfirmed, err = meter.Int64Counter("dlboard.deletes.confirmed",
		metric.WithDescription("Records the server confirmed deleting"),
	)
	if err != nil {
		return nil, err
	}

	m.DeletesMissing, err = meter.Int64Counter("dlboard.deletes.missing",
		metric.WithDescription("Requested deletions the server did not confirm"),
	)
	if err != nil {
		return nil, err
	}

	m.DeletesFailed, err = meter.Int64Counter("dlboard.deletes.failed",
		metric.WithDescription("Bulk delete requests that failed outright"),
	)
	if err != nil {
		return nil, err
	}

	m.EditsApplied, err = meter.Int64Counter("dlboard.edits.applied",
		metric.WithDescription("Bulk edit items the server accepted"),
	)
	if err != nil {
		return nil, err
	}

	m.EditsRejected, err = meter.Int64Counter("dlboard.edits.rejected",
		metric.WithDescription("Bulk edit items the server rejected"),
	)
	if err != nil {
		return nil, err
	}

	m.Resyncs, err = meter.Int64Counter("dlboard.resyncs",
		metric.WithDescription("Full snapshot resyncs performed"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamReconnects, err = meter.Int64Counter("dlboard.stream.reconnects",
		metric.WithDescription("Websocket reconnect attempts"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
