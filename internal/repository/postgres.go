package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/model/health"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		sender     TEXT NOT NULL CHECK (sender IN ('user','assistant')),
		type       TEXT NOT NULL,
		text       TEXT NOT NULL,
		analysis   JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		symptom    TEXT NOT NULL,
		advice     TEXT NOT NULL,
		last_shown BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_user_symptom ON reminders(user_id, lower(symptom))`,
	`CREATE TABLE IF NOT EXISTS activities (
		id       TEXT PRIMARY KEY,
		user_id  TEXT NOT NULL,
		type     TEXT NOT NULL CHECK (type IN ('Walk','Run','Cycle')),
		duration INTEGER NOT NULL,
		distance DOUBLE PRECISION NOT NULL DEFAULT 0,
		date     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_user_date ON activities(user_id, date DESC)`,
}

// ConnectPostgres creates a connection pool and applies migrations.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	for i, stmt := range postgresMigrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return pool, nil
}

// PostgresChatRepo implements ChatRepository using PostgreSQL.
type PostgresChatRepo struct {
	db *pgxpool.Pool
}

func NewPostgresChatRepo(db *pgxpool.Pool) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

func (r *PostgresChatRepo) CreateSession(ctx context.Context, session chat.Session) error {
	_, err := r.db.Exec(ctx, `INSERT INTO chat_sessions (id, user_id, created_at) VALUES ($1, $2, $3)`,
		session.ID, session.UserID, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat session: %w", err)
	}
	return nil
}

func (r *PostgresChatRepo) GetSession(ctx context.Context, id string) (chat.Session, error) {
	return r.scanSession(r.db.QueryRow(ctx, `SELECT id, user_id, created_at FROM chat_sessions WHERE id = $1`, id))
}

func (r *PostgresChatRepo) LatestSession(ctx context.Context, userID string) (chat.Session, error) {
	return r.scanSession(r.db.QueryRow(ctx,
		`SELECT id, user_id, created_at FROM chat_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID))
}

func (r *PostgresChatRepo) scanSession(row pgx.Row) (chat.Session, error) {
	var session chat.Session
	if err := row.Scan(&session.ID, &session.UserID, &session.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Session{}, fmt.Errorf("chat session: %w", ErrNotFound)
		}
		return chat.Session{}, fmt.Errorf("scanning chat session: %w", err)
	}
	return session, nil
}

func (r *PostgresChatRepo) AppendMessage(ctx context.Context, msg chat.Message) error {
	analysis, err := encodeAnalysis(msg.Analysis)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO chat_messages (id, session_id, sender, type, text, analysis, created_at)
		SELECT $1, id, $3, $4, $5, $6, $7 FROM chat_sessions WHERE id = $2`,
		msg.ID, msg.SessionID, msg.Sender, msg.Type, msg.Text, analysis, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", msg.SessionID, ErrNotFound)
	}
	return nil
}

func (r *PostgresChatRepo) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, session_id, sender, type, text, analysis, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg      chat.Message
			analysis []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Type, &msg.Text, &analysis, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		if msg.Analysis, err = decodeAnalysis(analysis); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresChatRepo) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting chat messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresReminderRepo implements ReminderRepository using PostgreSQL.
type PostgresReminderRepo struct {
	db *pgxpool.Pool
}

func NewPostgresReminderRepo(db *pgxpool.Pool) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

const pgReminderColumns = `id, user_id, symptom, advice, last_shown, created_at`

func (r *PostgresReminderRepo) Upsert(ctx context.Context, rem health.Reminder) (health.Reminder, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO reminders (`+pgReminderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, lower(symptom)) DO UPDATE SET
			symptom = EXCLUDED.symptom,
			advice = EXCLUDED.advice,
			last_shown = EXCLUDED.last_shown
		RETURNING `+pgReminderColumns,
		rem.ID, rem.UserID, rem.Symptom, rem.Advice, rem.LastShown, rem.CreatedAt)
	saved, err := scanPgReminder(row)
	if err != nil {
		return health.Reminder{}, fmt.Errorf("upserting reminder: %w", err)
	}
	return saved, nil
}

func (r *PostgresReminderRepo) Get(ctx context.Context, id string) (health.Reminder, error) {
	return scanPgReminder(r.db.QueryRow(ctx, `SELECT `+pgReminderColumns+` FROM reminders WHERE id = $1`, id))
}

func (r *PostgresReminderRepo) ListByUser(ctx context.Context, userID string) ([]health.Reminder, error) {
	return r.list(ctx, `SELECT `+pgReminderColumns+` FROM reminders WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *PostgresReminderRepo) ListShownBefore(ctx context.Context, cutoff int64) ([]health.Reminder, error) {
	return r.list(ctx, `SELECT `+pgReminderColumns+` FROM reminders WHERE last_shown < $1 ORDER BY created_at`, cutoff)
}

func (r *PostgresReminderRepo) ClaimShown(ctx context.Context, id string, cutoff, at int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE reminders SET last_shown = $1 WHERE id = $2 AND last_shown < $3`, at, id, cutoff)
	if err != nil {
		return false, fmt.Errorf("claiming reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresReminderRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresReminderRepo) list(ctx context.Context, query string, args ...any) ([]health.Reminder, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	defer rows.Close()

	reminders := make([]health.Reminder, 0)
	for rows.Next() {
		rem, err := scanPgReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func scanPgReminder(row pgx.Row) (health.Reminder, error) {
	var rem health.Reminder
	if err := row.Scan(&rem.ID, &rem.UserID, &rem.Symptom, &rem.Advice, &rem.LastShown, &rem.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return health.Reminder{}, fmt.Errorf("reminder: %w", ErrNotFound)
		}
		return health.Reminder{}, fmt.Errorf("scanning reminder: %w", err)
	}
	return rem, nil
}

// PostgresActivityRepo implements ActivityRepository using PostgreSQL.
type PostgresActivityRepo struct {
	db *pgxpool.Pool
}

func NewPostgresActivityRepo(db *pgxpool.Pool) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

func (r *PostgresActivityRepo) Create(ctx context.Context, a health.Activity) error {
	_, err := r.db.Exec(ctx, `INSERT INTO activities (id, user_id, type, duration, distance, date) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, string(a.Type), a.Duration, a.Distance, a.Date)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

func (r *PostgresActivityRepo) ListRecent(ctx context.Context, userID string, limit int) ([]health.Activity, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.db.Query(ctx, `SELECT id, user_id, type, duration, distance, date
		FROM activities WHERE user_id = $1 ORDER BY date DESC LIMIT $2`, userID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	activities := make([]health.Activity, 0)
	for rows.Next() {
		var (
			a    health.Activity
			kind string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &kind, &a.Duration, &a.Distance, &a.Date); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.Type = health.ActivityType(kind)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (r *PostgresActivityRepo) Summary(ctx context.Context, userID string) (health.ActivitySummary, error) {
	var summary health.ActivitySummary
	err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(duration), 0), COALESCE(SUM(distance), 0)
		FROM activities WHERE user_id = $1`, userID).
		Scan(&summary.Count, &summary.TotalMinutes, &summary.TotalDistance)
	if err != nil {
		return health.ActivitySummary{}, fmt.Errorf("summarising activities: %w", err)
	}
	return summary, nil
}
