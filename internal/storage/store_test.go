package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) reminder.Store {
	t.Helper()
	st, err := Open(Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "reminders.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func insertItem(t *testing.T, st reminder.Store, it reminder.Item) reminder.Item {
	t.Helper()
	if it.Status == "" {
		it.Status = reminder.StatusWaiting
	}
	if it.Message == "" {
		it.Message = "m"
	}
	if err := st.Insert(context.Background(), &it); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return it
}

func TestInsertAssignsDistinctIDs(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		it := insertItem(t, st, reminder.Item{
			RecipientID: 2, OriginAt: now, DueAt: now.Add(time.Hour),
		})
		if it.ID == 0 || seen[it.ID] {
			t.Fatalf("bad id %d", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestRoundTripPreservesFields(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	want := insertItem(t, st, reminder.Item{
		ChatID:      -1001234,
		AuthorID:    1,
		RecipientID: 2,
		Permalink:   "https://t.me/c/1234/56",
		Message:     "pick up the café order ☕",
		OriginAt:    now,
		DueAt:       now.Add(90 * time.Minute),
	})

	items, err := st.Find(context.Background(), reminder.Filter{ID: &want.ID})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("found %d items, want 1", len(items))
	}
	got := items[0]
	if got.ChatID != want.ChatID || got.AuthorID != want.AuthorID ||
		got.RecipientID != want.RecipientID || got.Permalink != want.Permalink ||
		got.Message != want.Message || got.Status != reminder.StatusWaiting {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.OriginAt.Equal(want.OriginAt) || !got.DueAt.Equal(want.DueAt) {
		t.Fatalf("timestamps drifted: origin %v/%v due %v/%v",
			got.OriginAt, want.OriginAt, got.DueAt, want.DueAt)
	}
}

func TestFindFiltersAndOrder(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	a := insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: now.Add(time.Hour)})
	b := insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: now.Add(3 * time.Hour)})
	insertItem(t, st, reminder.Item{RecipientID: 9, OriginAt: now, DueAt: now.Add(2 * time.Hour)})

	done := insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: now.Add(4 * time.Hour)})
	done.Status = reminder.StatusReminded
	if err := st.Update(context.Background(), done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rcpt := int64(2)
	waiting := reminder.StatusWaiting
	items, err := st.Find(context.Background(), reminder.Filter{RecipientID: &rcpt, Status: &waiting})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("found %d items, want 2", len(items))
	}
	// Due time descending.
	if items[0].ID != b.ID || items[1].ID != a.ID {
		t.Fatalf("wrong order: %d, %d", items[0].ID, items[1].ID)
	}
}

func TestFindDueBeforeIsInclusive(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	horizon := now.Add(30 * time.Second)

	at := insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: horizon})
	insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: horizon.Add(time.Millisecond)})

	items, err := st.Find(context.Background(), reminder.Filter{DueBefore: &horizon})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(items) != 1 || items[0].ID != at.ID {
		t.Fatalf("horizon selection wrong: %+v", items)
	}
}

func TestUpdatePersistsStatusChange(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	it := insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: now.Add(time.Hour)})
	it.Status = reminder.StatusFailed
	if err := st.Update(context.Background(), it); err != nil {
		t.Fatalf("Update: %v", err)
	}

	items, err := st.Find(context.Background(), reminder.Filter{ID: &it.ID})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if items[0].Status != reminder.StatusFailed {
		t.Fatalf("Status = %v, want FAILED", items[0].Status)
	}
}

func TestInsertRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	it := reminder.Item{RecipientID: 2, Message: "m", OriginAt: time.Now(), DueAt: time.Now(), Status: "SNOOZED"}
	err := st.Insert(context.Background(), &it)
	if !errors.Is(err, errUnknownStatus) {
		t.Fatalf("err = %v, want errUnknownStatus", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	it := insertItem(t, st, reminder.Item{RecipientID: 2, OriginAt: now, DueAt: now.Add(time.Hour)})

	if err := st.Delete(context.Background(), it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	items, err := st.Find(context.Background(), reminder.Filter{ID: &it.ID})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(items) != 0 {
		t.Fatal("item still present after delete")
	}
}

func TestPurgeResolved(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	cutoff := now.Add(-24 * time.Hour)

	mk := func(recipient int64, status reminder.Status, due time.Time) int64 {
		it := insertItem(t, st, reminder.Item{RecipientID: recipient, OriginAt: due.Add(-time.Hour), DueAt: due})
		if status != reminder.StatusWaiting {
			it.Status = status
			if err := st.Update(context.Background(), it); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
		return it.ID
	}

	oldReminded := mk(2, reminder.StatusReminded, now.Add(-48*time.Hour))
	mk(2, reminder.StatusFailed, now.Add(-30*time.Hour))
	freshReminded := mk(2, reminder.StatusReminded, now.Add(-time.Hour))
	oldWaiting := mk(2, reminder.StatusWaiting, now.Add(-48*time.Hour))
	otherUser := mk(9, reminder.StatusReminded, now.Add(-48*time.Hour))

	n, err := st.PurgeResolved(context.Background(), 0, 2, cutoff)
	if err != nil {
		t.Fatalf("PurgeResolved: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged %d, want 2", n)
	}

	left, err := st.Find(context.Background(), reminder.Filter{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	ids := map[int64]bool{}
	for _, it := range left {
		ids[it.ID] = true
	}
	if ids[oldReminded] {
		t.Fatal("old resolved item survived purge")
	}
	for _, id := range []int64{freshReminded, oldWaiting, otherUser} {
		if !ids[id] {
			t.Fatalf("item %d should survive", id)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "oracle", Path: "x"}, logx.Nop())
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
