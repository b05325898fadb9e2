package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	kit "remindbot/internal/transport"
)

// memStore is an in-memory Store for the core tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]Item

	insertErr error
	updateErr error
	findErr   error
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, items: map[int64]Item{}}
}

func (m *memStore) Insert(_ context.Context, it *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	it.ID = m.nextID
	m.nextID++
	m.items[it.ID] = *it
	return nil
}

func (m *memStore) Find(_ context.Context, f Filter) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []Item
	for _, it := range m.items {
		if f.ID != nil && it.ID != *f.ID {
			continue
		}
		if f.ChatID != nil && it.ChatID != *f.ChatID {
			continue
		}
		if f.RecipientID != nil && it.RecipientID != *f.RecipientID {
			continue
		}
		if f.Status != nil && it.Status != *f.Status {
			continue
		}
		if f.DueBefore != nil && it.DueAt.After(*f.DueBefore) {
			continue
		}
		if f.DueAfter != nil && !it.DueAt.After(*f.DueAfter) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.After(out[j].DueAt) })
	return out, nil
}

func (m *memStore) Update(_ context.Context, it Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.items[it.ID] = it
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memStore) PurgeResolved(_ context.Context, chatID, recipientID int64, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, it := range m.items {
		if !it.Status.Terminal() {
			continue
		}
		if chatID != 0 && it.ChatID != chatID {
			continue
		}
		if recipientID != 0 && it.RecipientID != recipientID {
			continue
		}
		if !it.DueAt.Before(olderThan) {
			continue
		}
		delete(m.items, id)
		n++
	}
	return n, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) get(id int64) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok
}

// fakeCourier scripts transport behavior per recipient id.
type fakeCourier struct {
	mu sync.Mutex

	resolveErr map[int64]error
	sendErr    map[int64]error
	sent       []string // payloads, in send order
	sentTo     []int64
}

func newFakeCourier() *fakeCourier {
	return &fakeCourier{resolveErr: map[int64]error{}, sendErr: map[int64]error{}}
}

func (c *fakeCourier) ResolveRecipient(_ context.Context, userID, _ int64) (kit.Recipient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.resolveErr[userID]; err != nil {
		return kit.Recipient{}, err
	}
	return kit.Recipient{ID: userID, DisplayName: "user"}, nil
}

func (c *fakeCourier) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendErr[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	c.sent = append(c.sent, text)
	c.sentTo = append(c.sentTo, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.sent)}, nil
}

func (c *fakeCourier) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestService(store Store, courier Courier) *Service {
	return New(Config{
		PollInterval:   30 * time.Second,
		AttemptTimeout: time.Second,
		Retention:      24 * time.Hour,
	}, store, courier, testLogger(), nil)
}
