package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	logx "remindbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reminders (
  id           BIGSERIAL PRIMARY KEY,
  chat_id      BIGINT NOT NULL DEFAULT 0,
  author_id    BIGINT NOT NULL,
  recipient_id BIGINT NOT NULL,
  permalink    TEXT NOT NULL DEFAULT '',
  message      TEXT NOT NULL DEFAULT '',
  origin_at    TIMESTAMPTZ NOT NULL,
  due_at       TIMESTAMPTZ NOT NULL,
  status       TEXT NOT NULL DEFAULT 'WAITING'
);
CREATE INDEX IF NOT EXISTS idx_reminders_sweep ON reminders(status, due_at);
CREATE INDEX IF NOT EXISTS idx_reminders_recipient ON reminders(recipient_id, status);
`

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) bindTime(t time.Time) any { return t.UTC() }

func (postgresDialect) insertReturningID(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id)
	return id, err
}

func openPostgres(cfg Config, log logx.Logger) (*sqlStore, error) {
	dsn := strings.TrimSpace(cfg.Path)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlStore{db: db, d: postgresDialect{}, log: log}, nil
}
