package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// dialect abstracts the per-driver differences: placeholder style, time
// encoding, and how inserted ids come back.
type dialect interface {
	name() string
	// rebind rewrites ?-placeholders into the driver's native style.
	rebind(query string) string
	// bindTime encodes a timestamp for a bound parameter.
	bindTime(t time.Time) any
	// insertReturningID runs the insert and yields the assigned id.
	insertReturningID(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error)
}

// sqlStore is the shared reminder.Store implementation; drivers differ
// only by dialect.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

var _ reminder.Store = (*sqlStore)(nil)

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const insertSQL = `INSERT INTO reminders(chat_id, author_id, recipient_id, permalink, message, origin_at, due_at, status)
 VALUES(?,?,?,?,?,?,?,?)`

func (s *sqlStore) Insert(ctx context.Context, it *reminder.Item) error {
	if !it.Status.Valid() {
		return fmt.Errorf("%w: %q", errUnknownStatus, it.Status)
	}
	id, err := s.d.insertReturningID(ctx, s.db, s.d.rebind(insertSQL),
		it.ChatID, it.AuthorID, it.RecipientID, it.Permalink, it.Message,
		s.d.bindTime(it.OriginAt), s.d.bindTime(it.DueAt), string(it.Status),
	)
	if err != nil {
		return err
	}
	it.ID = id
	return nil
}

func (s *sqlStore) Find(ctx context.Context, f reminder.Filter) ([]reminder.Item, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.ID != nil {
		add("id = ?", *f.ID)
	}
	if f.ChatID != nil {
		add("chat_id = ?", *f.ChatID)
	}
	if f.RecipientID != nil {
		add("recipient_id = ?", *f.RecipientID)
	}
	if f.Status != nil {
		add("status = ?", string(*f.Status))
	}
	if f.OriginAfter != nil {
		add("origin_at > ?", s.d.bindTime(*f.OriginAfter))
	}
	if f.OriginBefore != nil {
		add("origin_at < ?", s.d.bindTime(*f.OriginBefore))
	}
	if f.DueAfter != nil {
		add("due_at > ?", s.d.bindTime(*f.DueAfter))
	}
	if f.DueBefore != nil {
		add("due_at <= ?", s.d.bindTime(*f.DueBefore))
	}

	q := `SELECT id, chat_id, author_id, recipient_id, permalink, message, origin_at, due_at, status FROM reminders`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY due_at DESC"

	rows, err := s.db.QueryContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Item
	for rows.Next() {
		var (
			it       reminder.Item
			origin   tstamp
			due      tstamp
			rawState string
		)
		if err := rows.Scan(&it.ID, &it.ChatID, &it.AuthorID, &it.RecipientID,
			&it.Permalink, &it.Message, &origin, &due, &rawState); err != nil {
			return nil, err
		}
		st, err := reminder.ParseStatus(rawState)
		if err != nil {
			// Reject unknown values at the store boundary rather than
			// letting them leak into the lifecycle.
			return nil, fmt.Errorf("%w (id=%d): %v", errUnknownStatus, it.ID, err)
		}
		it.Status = st
		it.OriginAt = origin.t
		it.DueAt = due.t
		out = append(out, it)
	}
	return out, rows.Err()
}

const updateSQL = `UPDATE reminders
 SET chat_id = ?, author_id = ?, recipient_id = ?, permalink = ?, message = ?, origin_at = ?, due_at = ?, status = ?
 WHERE id = ?`

func (s *sqlStore) Update(ctx context.Context, it reminder.Item) error {
	if !it.Status.Valid() {
		return fmt.Errorf("%w: %q", errUnknownStatus, it.Status)
	}
	_, err := s.db.ExecContext(ctx, s.d.rebind(updateSQL),
		it.ChatID, it.AuthorID, it.RecipientID, it.Permalink, it.Message,
		s.d.bindTime(it.OriginAt), s.d.bindTime(it.DueAt), string(it.Status), it.ID,
	)
	return err
}

func (s *sqlStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM reminders WHERE id = ?`), id)
	return err
}

func (s *sqlStore) PurgeResolved(ctx context.Context, chatID, recipientID int64, olderThan time.Time) (int64, error) {
	q := `DELETE FROM reminders WHERE status IN (?, ?) AND due_at < ?`
	args := []any{string(reminder.StatusReminded), string(reminder.StatusFailed), s.d.bindTime(olderThan)}
	if chatID != 0 {
		q += " AND chat_id = ?"
		args = append(args, chatID)
	}
	if recipientID != 0 {
		q += " AND recipient_id = ?"
		args = append(args, recipientID)
	}
	res, err := s.db.ExecContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// tstamp scans driver timestamps: unix milliseconds (sqlite) or native
// timestamptz (postgres).
type tstamp struct{ t time.Time }

func (ts *tstamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		ts.t = time.Time{}
	case time.Time:
		ts.t = x.UTC()
	case int64:
		ts.t = time.UnixMilli(x).UTC()
	case []byte:
		return ts.scanString(string(x))
	case string:
		return ts.scanString(x)
	default:
		return fmt.Errorf("storage: cannot scan %T into timestamp", v)
	}
	return nil
}

func (ts *tstamp) scanString(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		ts.t = time.UnixMilli(ms).UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("storage: bad timestamp %q: %w", s, err)
	}
	ts.t = t.UTC()
	return nil
}
