// Package reconcile keeps the local table consistent with the server:
// it applies snapshots and stream events, and mutates locally only what
// the server confirms for bulk operations.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/dlboard/internal/api"
	"github.com/basket/dlboard/internal/audit"
	"github.com/basket/dlboard/internal/bus"
	"github.com/basket/dlboard/internal/otel"
	"github.com/basket/dlboard/internal/record"
	"github.com/basket/dlboard/internal/stream"
	"github.com/basket/dlboard/internal/table"
)

// Server is the slice of the HTTP API the reconciler needs.
// *api.Client satisfies it.
type Server interface {
	FetchDownloads(ctx context.Context) ([]record.Raw, error)
	BulkDelete(ctx context.Context, ids []int64) ([]int64, error)
	BulkEdit(ctx context.Context, patches []record.Patch) ([]api.EditResult, error)
}

// DeleteOutcome reports what a bulk delete actually did. Confirmed holds
// the ids the server deleted (and that were removed locally); Missing is
// how many requested ids the server did not confirm.
type DeleteOutcome struct {
	Requested int
	Confirmed []int64
	Missing   int
}

// Complete reports whether every requested id was confirmed.
func (o DeleteOutcome) Complete() bool { return o.Missing == 0 }

// EditOutcome summarizes a bulk edit: how many items the server accepted
// (and were applied locally) and the per-item rejections.
type EditOutcome struct {
	Applied  int
	Rejected []api.EditResult
}

// Reconciler applies server state to the local table and publishes
// change notifications on the bus. bus and metrics may be nil.
type Reconciler struct {
	store   *table.Store
	server  Server
	bus     *bus.Bus
	metrics *otel.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

func New(store *table.Store, server Server, b *bus.Bus, metrics *otel.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   store,
		server:  server,
		bus:     b,
		metrics: metrics,
		tracer:  nooptrace.NewTracerProvider().Tracer(otel.TracerName),
		logger:  logger,
	}
}

// SetTracer enables spans around snapshot and bulk operations. The
// default is a noop tracer.
func (r *Reconciler) SetTracer(tr trace.Tracer) {
	if tr != nil {
		r.tracer = tr
	}
}

// Snapshot performs the bulk read and loads the result into the table.
// Safe to repeat: records already present are left untouched.
func (r *Reconciler) Snapshot(ctx context.Context) (int, error) {
	ctx, span := otel.StartSpan(ctx, r.tracer, "snapshot")
	defer span.End()

	start := time.Now()
	raws, err := r.server.FetchDownloads(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	if r.metrics != nil {
		r.metrics.SnapshotDuration.Record(ctx, time.Since(start).Seconds())
	}

	added, first := r.store.Add(raws)
	ids := recordIDs(added)
	span.SetAttributes(otel.AttrBatchSize.Int(len(raws)))
	audit.Record(audit.KindSnapshot, fmt.Sprintf("%d records, %d new", len(raws), len(added)), nil)
	r.logger.Info("snapshot loaded", "records", len(raws), "added", len(added), "initial", first)

	if len(added) > 0 {
		r.publish(bus.TopicDownloadCreated, bus.CreatedEvent{IDs: ids, Initial: first})
	}
	return len(added), nil
}

// Resync re-runs the snapshot to pick up anything missed during a stream
// gap. Deduplication in the table makes this idempotent.
func (r *Reconciler) Resync(ctx context.Context) error {
	added, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.Resyncs.Add(ctx, 1)
	}
	audit.Record(audit.KindResync, fmt.Sprintf("added %d", added), nil)
	r.publish(bus.TopicSyncResynced, bus.ResyncEvent{Added: added})
	return nil
}

// HandleEvent applies one change-feed event. Unknown event types are
// counted and dropped, never fatal.
func (r *Reconciler) HandleEvent(ev stream.Event) error {
	ctx := context.Background()
	switch ev.Type {
	case stream.TypeCreate:
		raws, err := stream.DecodeRecords(ev.Data)
		if err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		added, first := r.store.Add(raws)
		r.count(ctx, len(added), len(raws)-len(added))
		audit.Record(audit.KindEventCreate, "", recordIDs(added))
		if len(added) > 0 {
			r.publish(bus.TopicDownloadCreated, bus.CreatedEvent{IDs: recordIDs(added), Initial: first})
		}

	case stream.TypeUpdate:
		raws, err := stream.DecodeRecords(ev.Data)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		var changed []int64
		skipped := 0
		for _, raw := range raws {
			p := record.PatchFromRaw(raw)
			found, dirty := r.store.Update(p)
			if !found {
				skipped++
				r.logger.Warn("update for unknown download", "id", p.ID)
				continue
			}
			if dirty {
				changed = append(changed, p.ID)
			}
		}
		r.count(ctx, len(changed), skipped)
		audit.Record(audit.KindEventUpdate, "", changed)
		if len(changed) > 0 {
			r.publish(bus.TopicDownloadUpdated, bus.UpdatedEvent{IDs: changed})
		}

	case stream.TypeDelete:
		ids, err := stream.DecodeIDs(ev.Data)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		removed := r.store.Delete(ids)
		r.count(ctx, len(removed), len(ids)-len(removed))
		audit.Record(audit.KindEventDelete, "", removed)
		if len(removed) > 0 {
			r.publish(bus.TopicDownloadDeleted, bus.DeletedEvent{IDs: removed})
		}

	default:
		if r.metrics != nil {
			r.metrics.EventsDropped.Add(ctx, 1)
		}
		audit.Record(audit.KindEventDropped, fmt.Sprintf("type %d", ev.Type), nil)
		r.logger.Debug("dropped unhandled event", "type", ev.Type)
		r.publish(bus.TopicDownloadDropped, bus.DroppedEvent{Type: ev.Type})
	}
	return nil
}

// Delete sends a bulk delete for ids and removes locally only what the
// server confirms. On error the table is untouched.
func (r *Reconciler) Delete(ctx context.Context, ids []int64) (DeleteOutcome, error) {
	out := DeleteOutcome{Requested: len(ids)}
	if len(ids) == 0 {
		return out, nil
	}

	ctx, span := otel.StartSpan(ctx, r.tracer, "bulk_delete", otel.AttrBatchSize.Int(len(ids)))
	defer span.End()

	confirmed, err := r.server.BulkDelete(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(otel.AttrOutcome.String("failed"))
		if r.metrics != nil {
			r.metrics.DeletesFailed.Add(ctx, 1)
		}
		audit.Record(audit.KindDeleteFailed, err.Error(), ids)
		r.logger.Error("bulk delete failed", "requested", len(ids), "error", err)
		return out, err
	}

	out.Confirmed = r.store.Delete(confirmed)
	out.Missing = len(ids) - len(confirmed)

	if r.metrics != nil {
		r.metrics.DeletesConfirmed.Add(ctx, int64(len(confirmed)))
		r.metrics.DeletesMissing.Add(ctx, int64(out.Missing))
	}
	if out.Complete() {
		span.SetAttributes(otel.AttrOutcome.String("complete"))
		audit.Record(audit.KindDeleteAll, fmt.Sprintf("%d deleted", len(confirmed)), confirmed)
	} else {
		span.SetAttributes(otel.AttrOutcome.String("partial"))
		audit.Record(audit.KindDeletePartial,
			fmt.Sprintf("%d of %d confirmed", len(confirmed), len(ids)), confirmed)
		r.logger.Warn("partial bulk delete", "requested", len(ids), "confirmed", len(confirmed))
	}
	if len(out.Confirmed) > 0 {
		r.publish(bus.TopicDownloadDeleted, bus.DeletedEvent{IDs: out.Confirmed})
	}
	return out, nil
}

// Edit sends a bulk edit and applies locally only the items the server
// accepted.
func (r *Reconciler) Edit(ctx context.Context, patches []record.Patch) (EditOutcome, error) {
	var out EditOutcome
	if len(patches) == 0 {
		return out, nil
	}

	ctx, span := otel.StartSpan(ctx, r.tracer, "bulk_edit", otel.AttrBatchSize.Int(len(patches)))
	defer span.End()

	results, err := r.server.BulkEdit(ctx, patches)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("bulk edit failed", "items", len(patches), "error", err)
		return out, err
	}

	byID := make(map[int64]record.Patch, len(patches))
	for _, p := range patches {
		byID[p.ID] = p
	}

	var changed []int64
	for _, res := range results {
		if !res.Status {
			out.Rejected = append(out.Rejected, res)
			continue
		}
		p, ok := byID[res.ID]
		if !ok {
			continue
		}
		if found, dirty := r.store.Update(p); found && dirty {
			changed = append(changed, p.ID)
		}
		out.Applied++
	}

	if r.metrics != nil {
		r.metrics.EditsApplied.Add(ctx, int64(out.Applied))
		r.metrics.EditsRejected.Add(ctx, int64(len(out.Rejected)))
	}
	audit.Record(audit.KindEdit, fmt.Sprintf("%d applied, %d rejected", out.Applied, len(out.Rejected)), changed)
	if len(changed) > 0 {
		r.publish(bus.TopicDownloadUpdated, bus.UpdatedEvent{IDs: changed})
	}
	return out, nil
}

func (r *Reconciler) publish(topic string, payload any) {
	if r.bus != nil {
		r.bus.Publish(topic, payload)
	}
}

func (r *Reconciler) count(ctx context.Context, applied, skipped int) {
	if r.metrics == nil {
		return
	}
	if applied > 0 {
		r.metrics.EventsApplied.Add(ctx, int64(applied))
	}
	if skipped > 0 {
		r.metrics.EventsSkipped.Add(ctx, int64(skipped))
	}
}

func recordIDs(downloads []*record.Download) []int64 {
	ids := make([]int64, 0, len(downloads))
	for _, d := range downloads {
		ids = append(ids, d.ID)
	}
	return ids
}
