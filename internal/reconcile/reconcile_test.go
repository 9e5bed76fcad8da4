package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/basket/dlboard/internal/api"
	"github.com/basket/dlboard/internal/bus"
	"github.com/basket/dlboard/internal/record"
	"github.com/basket/dlboard/internal/stream"
	"github.com/basket/dlboard/internal/table"
)

// fakeServer scripts the API responses for a test.
type fakeServer struct {
	downloads  []record.Raw
	fetchErr   error
	confirmed  []int64
	deleteErr  error
	deletedReq [][]int64
	editResult []api.EditResult
	editErr    error
}

func (f *fakeServer) FetchDownloads(context.Context) ([]record.Raw, error) {
	return f.downloads, f.fetchErr
}

func (f *fakeServer) BulkDelete(_ context.Context, ids []int64) ([]int64, error) {
	f.deletedReq = append(f.deletedReq, ids)
	return f.confirmed, f.deleteErr
}

func (f *fakeServer) BulkEdit(context.Context, []record.Patch) ([]api.EditResult, error) {
	return f.editResult, f.editErr
}

func raw(id int64, title string) record.Raw {
	return record.Raw{
		"id":        float64(id),
		"title":     title,
		"url":       "https://example.com/dl",
		"mediaType": float64(3),
		"status":    float64(1),
	}
}

func newReconciler(t *testing.T, srv *fakeServer) (*Reconciler, *table.Store, *bus.Bus) {
	t.Helper()
	store := table.NewStore(nil)
	b := bus.New()
	return New(store, srv, b, nil, nil), store, b
}

func drain(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus event")
		return bus.Event{}
	}
}

func TestSnapshot_LoadsAndPublishes(t *testing.T) {
	srv := &fakeServer{downloads: []record.Raw{raw(1, "a"), raw(2, "b")}}
	r, store, b := newReconciler(t, srv)
	sub := b.Subscribe(bus.TopicDownloadCreated)
	defer b.Unsubscribe(sub)

	added, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if added != 2 || store.Len() != 2 {
		t.Fatalf("added = %d, store len = %d", added, store.Len())
	}

	ev := drain(t, sub.Ch())
	payload := ev.Payload.(bus.CreatedEvent)
	if !payload.Initial {
		t.Error("first snapshot should be marked initial")
	}
	if len(payload.IDs) != 2 {
		t.Errorf("ids = %v", payload.IDs)
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	srv := &fakeServer{downloads: []record.Raw{raw(1, "a")}}
	r, store, _ := newReconciler(t, srv)

	if _, err := r.Snapshot(context.Background()); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	added, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if added != 0 || store.Len() != 1 {
		t.Fatalf("repeat snapshot added %d, store len %d", added, store.Len())
	}
}

func TestSnapshot_FetchError(t *testing.T) {
	srv := &fakeServer{fetchErr: errors.New("connection refused")}
	r, store, _ := newReconciler(t, srv)

	if _, err := r.Snapshot(context.Background()); err == nil {
		t.Fatal("want error")
	}
	if store.Len() != 0 {
		t.Errorf("store should stay empty, len = %d", store.Len())
	}
}

func TestHandleEvent_Create(t *testing.T) {
	r, store, b := newReconciler(t, &fakeServer{})
	sub := b.Subscribe(bus.TopicDownloadCreated)
	defer b.Unsubscribe(sub)

	data, _ := json.Marshal(raw(5, "fresh"))
	if err := r.HandleEvent(stream.Event{Type: stream.TypeCreate, Data: data}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store len = %d", store.Len())
	}
	ev := drain(t, sub.Ch())
	if ids := ev.Payload.(bus.CreatedEvent).IDs; len(ids) != 1 || ids[0] != 5 {
		t.Errorf("ids = %v", ids)
	}
}

func TestHandleEvent_UpdateUnknownIDIsNoOp(t *testing.T) {
	r, store, _ := newReconciler(t, &fakeServer{})
	store.Add([]record.Raw{raw(1, "a")})

	data := json.RawMessage(`{"id":99,"title":"ghost"}`)
	if err := r.HandleEvent(stream.Event{Type: stream.TypeUpdate, Data: data}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store len = %d, unknown update must not create records", store.Len())
	}
	if d, ok := store.Get(1); !ok || d.Title != "a" {
		t.Errorf("record = %+v, ok = %v", d, ok)
	}
}

func TestHandleEvent_UpdateChangesRecord(t *testing.T) {
	r, store, b := newReconciler(t, &fakeServer{})
	store.Add([]record.Raw{raw(1, "old")})
	sub := b.Subscribe(bus.TopicDownloadUpdated)
	defer b.Unsubscribe(sub)

	data := json.RawMessage(`{"id":1,"title":"new","status":3}`)
	if err := r.HandleEvent(stream.Event{Type: stream.TypeUpdate, Data: data}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	d, ok := store.Get(1)
	if !ok || d.Title != "new" || d.Status != record.StatusDone {
		t.Errorf("record = %+v, ok = %v", d, ok)
	}
	ev := drain(t, sub.Ch())
	if ids := ev.Payload.(bus.UpdatedEvent).IDs; len(ids) != 1 || ids[0] != 1 {
		t.Errorf("ids = %v", ids)
	}
}

func TestHandleEvent_Delete(t *testing.T) {
	r, store, b := newReconciler(t, &fakeServer{})
	store.Add([]record.Raw{raw(1, "a"), raw(2, "b")})
	sub := b.Subscribe(bus.TopicDownloadDeleted)
	defer b.Unsubscribe(sub)

	// id 9 is unknown and must be skipped
	data := json.RawMessage(`{"ids":[2,9]}`)
	if err := r.HandleEvent(stream.Event{Type: stream.TypeDelete, Data: data}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if _, ok := store.Get(2); store.Len() != 1 || ok {
		t.Fatalf("store len = %d", store.Len())
	}
	ev := drain(t, sub.Ch())
	if ids := ev.Payload.(bus.DeletedEvent).IDs; len(ids) != 1 || ids[0] != 2 {
		t.Errorf("ids = %v", ids)
	}
}

func TestHandleEvent_ProgressDropped(t *testing.T) {
	r, store, b := newReconciler(t, &fakeServer{})
	store.Add([]record.Raw{raw(1, "a")})
	sub := b.Subscribe(bus.TopicDownloadDropped)
	defer b.Unsubscribe(sub)

	data := json.RawMessage(`{"id":1,"progress":55}`)
	if err := r.HandleEvent(stream.Event{Type: stream.TypeProgress, Data: data}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store len = %d", store.Len())
	}
	ev := drain(t, sub.Ch())
	if got := ev.Payload.(bus.DroppedEvent).Type; got != stream.TypeProgress {
		t.Errorf("dropped type = %d", got)
	}
}

func TestDelete_AllConfirmed(t *testing.T) {
	srv := &fakeServer{confirmed: []int64{1, 2}}
	r, store, _ := newReconciler(t, srv)
	store.Add([]record.Raw{raw(1, "a"), raw(2, "b"), raw(3, "c")})

	out, err := r.Delete(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !out.Complete() || len(out.Confirmed) != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if _, ok := store.Get(3); store.Len() != 1 || !ok {
		t.Errorf("store len = %d", store.Len())
	}
}

func TestDelete_Partial(t *testing.T) {
	// server confirms 2 of the 3 requested
	srv := &fakeServer{confirmed: []int64{1, 3}}
	r, store, _ := newReconciler(t, srv)
	store.Add([]record.Raw{raw(1, "a"), raw(2, "b"), raw(3, "c")})

	out, err := r.Delete(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if out.Complete() {
		t.Error("partial outcome reported as complete")
	}
	if out.Missing != 1 || len(out.Confirmed) != 2 {
		t.Errorf("outcome = %+v", out)
	}
	// the unconfirmed record stays
	if _, ok := store.Get(2); !ok {
		t.Error("unconfirmed record was removed locally")
	}
	if _, ok1 := store.Get(1); ok1 {
		t.Error("confirmed record 1 still present")
	}
	if _, ok3 := store.Get(3); ok3 {
		t.Error("confirmed record 3 still present")
	}
}

func TestDelete_TotalFailureLeavesTableUntouched(t *testing.T) {
	srv := &fakeServer{deleteErr: &api.ServerError{Message: "db locked"}}
	r, store, _ := newReconciler(t, srv)
	store.Add([]record.Raw{raw(1, "a"), raw(2, "b")})

	_, err := r.Delete(context.Background(), []int64{1, 2})
	if err == nil {
		t.Fatal("want error")
	}
	if store.Len() != 2 {
		t.Errorf("store len = %d, total failure must not mutate", store.Len())
	}
}

func TestDelete_EmptyRequest(t *testing.T) {
	srv := &fakeServer{}
	r, _, _ := newReconciler(t, srv)
	out, err := r.Delete(context.Background(), nil)
	if err != nil || out.Requested != 0 {
		t.Fatalf("out = %+v, err = %v", out, err)
	}
	if len(srv.deletedReq) != 0 {
		t.Error("empty delete should not hit the server")
	}
}

func TestEdit_AppliesAcceptedOnly(t *testing.T) {
	srv := &fakeServer{editResult: []api.EditResult{
		{Status: true, ID: 1},
		{Status: false, ID: 2, Error: "not found"},
	}}
	r, store, _ := newReconciler(t, srv)
	store.Add([]record.Raw{raw(1, "a"), raw(2, "b")})

	t1, t2 := "renamed", "also"
	out, err := r.Edit(context.Background(), []record.Patch{
		{ID: 1, Title: &t1},
		{ID: 2, Title: &t2},
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if out.Applied != 1 || len(out.Rejected) != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if d, ok := store.Get(1); !ok || d.Title != "renamed" {
		t.Errorf("record 1 = %+v, ok = %v", d, ok)
	}
	if d, ok := store.Get(2); !ok || d.Title != "b" {
		t.Errorf("record 2 = %+v, ok = %v", d, ok)
	}
}

func TestResync_PicksUpMissedRecords(t *testing.T) {
	srv := &fakeServer{downloads: []record.Raw{raw(1, "a")}}
	r, store, b := newReconciler(t, srv)
	sub := b.Subscribe(bus.TopicSyncResynced)
	defer b.Unsubscribe(sub)

	if _, err := r.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	srv.downloads = append(srv.downloads, raw(2, "missed"))

	if err := r.Resync(context.Background()); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("store len = %d", store.Len())
	}
	ev := drain(t, sub.Ch())
	if got := ev.Payload.(bus.ResyncEvent).Added; got != 1 {
		t.Errorf("added = %d", got)
	}
}

func TestOperationsEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	srv := &fakeServer{downloads: []record.Raw{raw(1, "a")}, confirmed: []int64{1}}
	r, _, _ := newReconciler(t, srv)
	r.SetTracer(tp.Tracer("test"))

	if _, err := r.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, err := r.Delete(context.Background(), []int64{1}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Edit(context.Background(), []record.Patch{{ID: 1}}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	names := make(map[string]bool)
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"snapshot", "bulk_delete", "bulk_edit"} {
		if !names[want] {
			t.Errorf("no %q span recorded, got %v", want, names)
		}
	}
}
