// Package reminder implements the scheduling core: the persistent item
// model, its status lifecycle, the delivery attempter, and the poll
// scheduler that drives due reminders to the messaging channel.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	kit "remindbot/internal/transport"
)

// Status is the closed lifecycle enumeration of an item.
//
// WAITING is the initial state. REMINDED and FAILED are terminal; the only
// way back to WAITING is an explicit reschedule.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusReminded Status = "REMINDED"
	StatusFailed   Status = "FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusReminded, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition occurs.
func (s Status) Terminal() bool { return s == StatusReminded || s == StatusFailed }

// ParseStatus converts a stored or user-supplied string into a Status.
// Unknown values are rejected.
func ParseStatus(raw string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q (allowed: %s)", raw, StatusNames())
	}
	return st, nil
}

// StatusNames lists the allowed status values for user-facing messages.
func StatusNames() string {
	return strings.Join([]string{string(StatusWaiting), string(StatusReminded), string(StatusFailed)}, ", ")
}

// Item is the sole persistent entity: one scheduled reminder.
type Item struct {
	ID          int64
	ChatID      int64 // owning group chat; 0 = direct context
	AuthorID    int64
	RecipientID int64
	Permalink   string
	Message     string
	OriginAt    time.Time
	DueAt       time.Time
	Status      Status
}

// Filter narrows a store query. All set fields combine with logical AND.
type Filter struct {
	ID          *int64
	ChatID      *int64
	RecipientID *int64
	Status      *Status

	OriginAfter  *time.Time
	OriginBefore *time.Time
	DueAfter     *time.Time
	DueBefore    *time.Time
}

// Store is the persistence contract for reminder items. Implementations
// live in internal/storage. Results of Find are ordered by due time
// descending.
type Store interface {
	Insert(ctx context.Context, it *Item) error
	Find(ctx context.Context, f Filter) ([]Item, error)
	Update(ctx context.Context, it Item) error
	Delete(ctx context.Context, id int64) error

	// PurgeResolved deletes terminal-status items whose due time precedes
	// olderThan. chatID/recipientID of 0 mean "any". Returns the count of
	// rows removed.
	PurgeResolved(ctx context.Context, chatID, recipientID int64, olderThan time.Time) (int64, error)

	Close() error
}

// Courier is the slice of the transport adapter the core needs for
// delivery. transport.Adapter satisfies it.
type Courier interface {
	ResolveRecipient(ctx context.Context, userID, chatID int64) (kit.Recipient, error)
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Event types published on the bus.
const (
	EventCreated     = "reminder.created"
	EventDelivered   = "reminder.delivered"
	EventFailed      = "reminder.failed"
	EventRescheduled = "reminder.rescheduled"
	EventPurged      = "reminder.purged"
	EventTick        = "reminder.tick"
)

type FailData struct {
	ID     int64
	Reason string // "resolve", "denied", "transport"
}

type PurgeData struct{ Count int64 }

type TickData struct {
	Scanned int
	Took    time.Duration
}
