package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	kit "remindbot/internal/transport"
)

func mustCreate(t *testing.T, svc *Service, req CreateRequest) Item {
	t.Helper()
	if req.Message == "" {
		req.Message = "m"
	}
	if req.DueAt.IsZero() {
		req.DueAt = time.Now().Add(time.Hour)
	}
	it, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return it
}

func TestAttemptSuccess(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{AuthorID: 2, RecipientID: 2, Message: "do the thing"})
	svc.Attempt(context.Background(), it)

	if courier.sendCount() != 1 {
		t.Fatalf("sent %d messages, want 1", courier.sendCount())
	}
	got, _ := store.get(it.ID)
	if got.Status != StatusReminded {
		t.Fatalf("Status = %v, want REMINDED", got.Status)
	}
	if !strings.Contains(courier.sent[0], "do the thing") {
		t.Fatalf("payload missing message: %q", courier.sent[0])
	}
	// Self reminder carries no attribution line.
	if strings.Contains(courier.sent[0], "Reminded by") {
		t.Fatalf("unexpected attribution: %q", courier.sent[0])
	}
}

func TestAttemptAttributesAuthor(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{AuthorID: 1, RecipientID: 2})
	svc.Attempt(context.Background(), it)

	if courier.sendCount() != 1 {
		t.Fatalf("sent %d messages, want 1", courier.sendCount())
	}
	if !strings.Contains(courier.sent[0], "Reminded by") {
		t.Fatalf("missing attribution: %q", courier.sent[0])
	}
}

func TestAttemptResolveFailureIsTerminal(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	courier.resolveErr[2] = kit.ErrRecipientNotFound
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{RecipientID: 2})
	svc.Attempt(context.Background(), it)

	got, ok := store.get(it.ID)
	if !ok {
		t.Fatal("failed item must stay retrievable")
	}
	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want FAILED", got.Status)
	}
	if courier.sendCount() != 0 {
		t.Fatal("nothing should be sent when resolution fails")
	}
}

func TestAttemptDeniedIsTerminal(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	courier.sendErr[2] = kit.ErrDeliveryDenied
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{RecipientID: 2})
	svc.Attempt(context.Background(), it)

	got, _ := store.get(it.ID)
	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want FAILED", got.Status)
	}
}

func TestAttemptSkipsNonWaiting(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{RecipientID: 2})
	it.Status = StatusReminded
	if err := store.Update(context.Background(), it); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc.Attempt(context.Background(), it)
	if courier.sendCount() != 0 {
		t.Fatal("terminal item must not be re-attempted")
	}
}

func TestAttemptSkipsDeleted(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{RecipientID: 2})
	if err := store.Delete(context.Background(), it.ID); err != nil {
		t.Fatalf("seed delete: %v", err)
	}

	svc.Attempt(context.Background(), it)
	if courier.sendCount() != 0 {
		t.Fatal("deleted item must not be attempted")
	}
}

func TestAttemptExactlyOnce(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{AuthorID: 2, RecipientID: 2})
	svc.Attempt(context.Background(), it)
	svc.Attempt(context.Background(), it)

	if courier.sendCount() != 1 {
		t.Fatalf("sent %d messages, want exactly 1", courier.sendCount())
	}
}

func TestAttemptFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	courier := newFakeCourier()
	courier.sendErr[2] = errors.New("wire broke")
	svc := newTestService(store, courier)

	it := mustCreate(t, svc, CreateRequest{RecipientID: 2})
	// Attempt has no error return; the failure must end up in the store.
	svc.Attempt(context.Background(), it)

	got, _ := store.get(it.ID)
	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want FAILED", got.Status)
	}
}
