package reminder

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/textkit"
)

// Config tunes the reminder core.
type Config struct {
	// PollInterval is the sweep period T; the lookahead horizon equals it,
	// bounding worst-case delivery lateness to one interval.
	PollInterval time.Duration

	// AttemptTimeout bounds one delivery attempt (resolve + send).
	AttemptTimeout time.Duration

	// Retention is how long resolved items are kept before the janitor
	// purges them.
	Retention time.Duration
}

const (
	defaultPollInterval   = 30 * time.Second
	defaultAttemptTimeout = 15 * time.Second
	defaultRetention      = 24 * time.Hour
)

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
}

// Service exposes the core operations: create, list, get, reschedule,
// delete, purge, and the per-item delivery attempt used by the poller.
type Service struct {
	cfg     Config
	store   Store
	courier Courier
	log     logx.Logger
	bus     eventbus.Bus

	now func() time.Time
}

func New(cfg Config, store Store, courier Courier, log logx.Logger, bus eventbus.Bus) *Service {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		courier: courier,
		log:     log,
		bus:     bus,
		now:     time.Now,
	}
}

func (s *Service) Retention() time.Duration { return s.cfg.Retention }

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// CreateRequest carries the collaborator-supplied fields of a new item.
// The origin timestamp is always assigned server-side.
type CreateRequest struct {
	ChatID      int64
	AuthorID    int64
	RecipientID int64
	Message     string
	DueAt       time.Time
	Permalink   string
}

// Create validates and persists a new reminder in WAITING state.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Item, error) {
	origin := s.now()
	if !req.DueAt.After(origin) {
		return Item{}, fmt.Errorf("due %s is not after %s: %w",
			req.DueAt.Format(time.RFC3339), origin.Format(time.RFC3339), ErrInvalidSchedule)
	}

	it := Item{
		ChatID:      req.ChatID,
		AuthorID:    req.AuthorID,
		RecipientID: req.RecipientID,
		Permalink:   req.Permalink,
		Message:     textkit.Shorten(req.Message, textkit.MessageLimit),
		OriginAt:    origin,
		DueAt:       req.DueAt,
		Status:      StatusWaiting,
	}
	if err := s.store.Insert(ctx, &it); err != nil {
		return Item{}, fmt.Errorf("insert reminder: %w", err)
	}

	s.log.Debug("reminder created",
		logx.Int64("id", it.ID),
		logx.Int64("recipient", it.RecipientID),
		logx.Time("due", it.DueAt))
	s.publish(EventCreated, it.ID)
	return it, nil
}

// List returns items matching the filter, due time descending.
func (s *Service) List(ctx context.Context, f Filter) ([]Item, error) {
	return s.store.Find(ctx, f)
}

// Get returns one item by id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	items, err := s.store.Find(ctx, Filter{ID: &id})
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, fmt.Errorf("reminder #%d: %w", id, ErrNotFound)
	}
	return items[0], nil
}

// Reschedule moves an item to a new future due time, optionally replaces
// its message, and re-admits it to polling by resetting WAITING. Only the
// item's recipient may reschedule it.
func (s *Service) Reschedule(ctx context.Context, id, actorID int64, due time.Time, newMessage *string) (Item, error) {
	it, err := s.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if it.RecipientID != actorID {
		return Item{}, fmt.Errorf("reminder #%d belongs to user %d: %w", id, it.RecipientID, ErrPermissionDenied)
	}
	if !due.After(s.now()) {
		return Item{}, fmt.Errorf("due %s has passed: %w", due.Format(time.RFC3339), ErrInvalidSchedule)
	}

	it.DueAt = due
	if newMessage != nil {
		it.Message = textkit.Shorten(*newMessage, textkit.MessageLimit)
	}
	it.Status = StatusWaiting
	if err := s.store.Update(ctx, it); err != nil {
		return Item{}, fmt.Errorf("update reminder #%d: %w", id, err)
	}

	s.log.Debug("reminder rescheduled", logx.Int64("id", id), logx.Time("due", due))
	s.publish(EventRescheduled, id)
	return it, nil
}

// Delete removes an item permanently. Only the recipient may delete it.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	it, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if it.RecipientID != actorID {
		return fmt.Errorf("reminder #%d belongs to user %d: %w", id, it.RecipientID, ErrPermissionDenied)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete reminder #%d: %w", id, err)
	}
	s.log.Debug("reminder deleted", logx.Int64("id", id))
	return nil
}

// PurgeOld removes a user's resolved reminders older than the cutoff and
// returns the count. Zero chatID/userID widen the purge (janitor use).
func (s *Service) PurgeOld(ctx context.Context, chatID, userID int64, olderThan time.Time) (int64, error) {
	n, err := s.store.PurgeResolved(ctx, chatID, userID, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge resolved reminders: %w", err)
	}
	if n > 0 {
		s.log.Debug("resolved reminders purged",
			logx.Int64("count", n),
			logx.Int64("chat_id", chatID),
			logx.Int64("user_id", userID))
		s.publish(EventPurged, PurgeData{Count: n})
	}
	return n, nil
}
