package reminder

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedWaiting(t *testing.T, store *memStore, recipient int64, due time.Time) int64 {
	t.Helper()
	it := Item{RecipientID: recipient, AuthorID: recipient, Message: "m", DueAt: due, OriginAt: due.Add(-time.Hour), Status: StatusWaiting}
	if err := store.Insert(context.Background(), &it); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return it.ID
}

func TestTickHorizonSelection(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	overdue := seedWaiting(t, store, 2, fixed.Add(-5*time.Minute))
	soon := seedWaiting(t, store, 2, fixed.Add(10*time.Second))
	atHorizon := seedWaiting(t, store, 2, fixed.Add(30*time.Second))
	beyond := seedWaiting(t, store, 2, fixed.Add(31*time.Second))

	p := NewPoller(svc, nil, testLogger())
	p.tick(context.Background())

	for _, id := range []int64{overdue, soon, atHorizon} {
		got, _ := store.get(id)
		if got.Status != StatusReminded {
			t.Fatalf("item %d status = %v, want REMINDED", id, got.Status)
		}
	}
	got, _ := store.get(beyond)
	if got.Status != StatusWaiting {
		t.Fatalf("item past horizon attempted early: status = %v", got.Status)
	}
	if courier.sendCount() != 3 {
		t.Fatalf("sent %d, want 3", courier.sendCount())
	}
}

func TestTickNeverReattemptsTerminal(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	seedWaiting(t, store, 2, fixed.Add(time.Second))
	courier.resolveErr[3] = errors.New("gone")
	failed := seedWaiting(t, store, 3, fixed.Add(time.Second))

	p := NewPoller(svc, nil, testLogger())
	p.tick(context.Background())
	p.tick(context.Background())

	if courier.sendCount() != 1 {
		t.Fatalf("sent %d, want 1 (single attempt per item)", courier.sendCount())
	}
	got, _ := store.get(failed)
	if got.Status != StatusFailed {
		t.Fatalf("failed item status = %v", got.Status)
	}
}

func TestTickFailureDoesNotAbortSweep(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	courier.sendErr[3] = errors.New("wire broke")
	svc := newTestService(store, courier)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	// The failing item is due later, so descending due order puts it first.
	bad := seedWaiting(t, store, 3, fixed.Add(20*time.Second))
	good := seedWaiting(t, store, 2, fixed.Add(10*time.Second))

	p := NewPoller(svc, nil, testLogger())
	p.tick(context.Background())

	gotBad, _ := store.get(bad)
	if gotBad.Status != StatusFailed {
		t.Fatalf("bad item status = %v, want FAILED", gotBad.Status)
	}
	gotGood, _ := store.get(good)
	if gotGood.Status != StatusReminded {
		t.Fatalf("good item status = %v, want REMINDED", gotGood.Status)
	}
}

func TestPollerWaitsForReadiness(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := New(Config{PollInterval: 10 * time.Millisecond, AttemptTimeout: time.Second}, store, courier, testLogger(), nil)

	seedWaiting(t, store, 2, time.Now().Add(5*time.Millisecond))

	ready := make(chan struct{})
	p := NewPoller(svc, ready, testLogger())
	p.Start(context.Background())
	defer p.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)
	if courier.sendCount() != 0 {
		t.Fatal("poller ticked before readiness")
	}

	close(ready)
	deadline := time.Now().Add(2 * time.Second)
	for courier.sendCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no delivery after readiness")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollerStopPreventsFurtherTicks(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := New(Config{PollInterval: 10 * time.Millisecond, AttemptTimeout: time.Second}, store, courier, testLogger(), nil)

	ready := make(chan struct{})
	close(ready)
	p := NewPoller(svc, ready, testLogger())
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)

	seedWaiting(t, store, 2, time.Now().Add(time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	if courier.sendCount() != 0 {
		t.Fatal("tick ran after Stop")
	}

	// Stop twice is fine.
	p.Stop(ctx)
}
