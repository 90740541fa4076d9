package eventlog

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/store"
)

// fakeStore is an in-memory stand-in for *store.DB, enough to exercise
// the monotonic-id invariant (P6) without a live Postgres.
type fakeStore struct {
	mu   sync.Mutex
	next int64
	rows []domain.SystemEvent
}

func (f *fakeStore) InsertEvent(ctx context.Context, e domain.SystemEvent) (domain.SystemEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	e.ID = f.next
	f.rows = append(f.rows, e)
	return e, nil
}

func (f *fakeStore) ListEvents(ctx context.Context, flt store.EventFilter) ([]domain.SystemEvent, error) {
	return f.rows, nil
}

func (f *fakeStore) ResolveEvent(ctx context.Context, id int64, resolvedBy string) error {
	return nil
}

func TestEmit_DistinctIDs(t *testing.T) {
	fs := &fakeStore{}
	l := New(fs, nil, zap.NewNop())

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := l.Emit(context.Background(), domain.CategoryScheduler, domain.SeverityInfo,
				domain.EventSchedulerWarmingComplete, "ok", "", "", nil)
			ids <- e.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate event id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct ids, want %d", len(seen), n)
	}
}

func TestEmit_WriteFailureNotifiesSink(t *testing.T) {
	fs := &failingStore{}
	notified := &recordingSink{}
	l := New(fs, notified, zap.NewNop())

	l.Emit(context.Background(), domain.CategoryDevice, domain.SeverityError,
		domain.EventDeviceInstallFailed, "boom", "dev1", "", nil)

	if !notified.writeFailureCalled {
		t.Error("expected NotifyWriteFailure to be called on insert error")
	}
}

type failingStore struct{}

func (failingStore) InsertEvent(ctx context.Context, e domain.SystemEvent) (domain.SystemEvent, error) {
	return domain.SystemEvent{}, errBoom
}
func (failingStore) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.SystemEvent, error) {
	return nil, nil
}
func (failingStore) ResolveEvent(ctx context.Context, id int64, resolvedBy string) error { return nil }

var errBoom = domain.ErrStoreContention

type recordingSink struct {
	writeFailureCalled bool
}

func (r *recordingSink) NotifyEvent(ctx context.Context, e domain.SystemEvent) {}
func (r *recordingSink) NotifyWriteFailure(ctx context.Context, attempted domain.SystemEvent, writeErr error) {
	r.writeFailureCalled = true
}
