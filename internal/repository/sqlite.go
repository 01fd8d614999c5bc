package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/healthwise/companion/internal/model/chat"
	"github.com/healthwise/companion/internal/model/health"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		sender     TEXT NOT NULL CHECK(sender IN ('user','assistant')),
		type       TEXT NOT NULL,
		text       TEXT NOT NULL,
		analysis   TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		symptom    TEXT NOT NULL COLLATE NOCASE,
		advice     TEXT NOT NULL,
		last_shown INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(user_id, symptom)
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id       TEXT PRIMARY KEY,
		user_id  TEXT NOT NULL,
		type     TEXT NOT NULL CHECK(type IN ('Walk','Run','Cycle')),
		duration INTEGER NOT NULL,
		distance REAL NOT NULL DEFAULT 0,
		date     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_user_date ON activities(user_id, date)`,
}

// OpenSQLite opens a SQLite database at path and runs migrations.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// 单连接：内存库每个连接都是独立的数据库，PRAGMA 也按连接生效。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func migrateSQLite(db *sql.DB) error {
	for i, stmt := range sqliteMigrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// SQLiteChatRepo implements ChatRepository using SQLite.
type SQLiteChatRepo struct {
	db *sql.DB
}

func NewSQLiteChatRepo(db *sql.DB) *SQLiteChatRepo {
	return &SQLiteChatRepo{db: db}
}

func (r *SQLiteChatRepo) CreateSession(ctx context.Context, session chat.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		session.ID, session.UserID, formatTime(session.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting chat session: %w", err)
	}
	return nil
}

func (r *SQLiteChatRepo) GetSession(ctx context.Context, id string) (chat.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, user_id, created_at FROM chat_sessions WHERE id = ?`, id)
	return scanSQLiteSession(row)
}

func (r *SQLiteChatRepo) LatestSession(ctx context.Context, userID string) (chat.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM chat_sessions WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID)
	return scanSQLiteSession(row)
}

func (r *SQLiteChatRepo) AppendMessage(ctx context.Context, msg chat.Message) error {
	analysis, err := encodeAnalysis(msg.Analysis)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, sender, type, text, analysis, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Sender, msg.Type, msg.Text, analysis, formatTime(msg.CreatedAt))
	if err != nil {
		if _, getErr := r.GetSession(ctx, msg.SessionID); errors.Is(getErr, ErrNotFound) {
			return fmt.Errorf("session %s: %w", msg.SessionID, ErrNotFound)
		}
		return fmt.Errorf("inserting chat message: %w", err)
	}
	return nil
}

func (r *SQLiteChatRepo) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, sender, type, text, analysis, created_at FROM chat_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg       chat.Message
			analysis  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Type, &msg.Text, &analysis, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		if msg.Analysis, err = decodeAnalysis([]byte(analysis.String)); err != nil {
			return nil, err
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *SQLiteChatRepo) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting chat messages: %w", err)
	}
	return res.RowsAffected()
}

func scanSQLiteSession(row *sql.Row) (chat.Session, error) {
	var (
		session   chat.Session
		createdAt string
	)
	if err := row.Scan(&session.ID, &session.UserID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Session{}, fmt.Errorf("chat session: %w", ErrNotFound)
		}
		return chat.Session{}, fmt.Errorf("scanning chat session: %w", err)
	}
	var err error
	session.CreatedAt, err = parseTime(createdAt)
	return session, err
}

// SQLiteReminderRepo implements ReminderRepository using SQLite.
type SQLiteReminderRepo struct {
	db *sql.DB
}

func NewSQLiteReminderRepo(db *sql.DB) *SQLiteReminderRepo {
	return &SQLiteReminderRepo{db: db}
}

const sqliteReminderColumns = `id, user_id, symptom, advice, last_shown, created_at`

func (r *SQLiteReminderRepo) Upsert(ctx context.Context, rem health.Reminder) (health.Reminder, error) {
	row := r.db.QueryRowContext(ctx, `INSERT INTO reminders (`+sqliteReminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, symptom) DO UPDATE SET
			symptom = excluded.symptom,
			advice = excluded.advice,
			last_shown = excluded.last_shown
		RETURNING `+sqliteReminderColumns,
		rem.ID, rem.UserID, rem.Symptom, rem.Advice, rem.LastShown, formatTime(rem.CreatedAt))
	saved, err := scanSQLiteReminder(row)
	if err != nil {
		return health.Reminder{}, fmt.Errorf("upserting reminder: %w", err)
	}
	return saved, nil
}

func (r *SQLiteReminderRepo) Get(ctx context.Context, id string) (health.Reminder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteReminderColumns+` FROM reminders WHERE id = ?`, id)
	return scanSQLiteReminder(row)
}

func (r *SQLiteReminderRepo) ListByUser(ctx context.Context, userID string) ([]health.Reminder, error) {
	return r.list(ctx, `SELECT `+sqliteReminderColumns+` FROM reminders WHERE user_id = ? ORDER BY created_at`, userID)
}

func (r *SQLiteReminderRepo) ListShownBefore(ctx context.Context, cutoff int64) ([]health.Reminder, error) {
	return r.list(ctx, `SELECT `+sqliteReminderColumns+` FROM reminders WHERE last_shown < ? ORDER BY created_at`, cutoff)
}

func (r *SQLiteReminderRepo) ClaimShown(ctx context.Context, id string, cutoff, at int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE reminders SET last_shown = ? WHERE id = ? AND last_shown < ?`, at, id, cutoff)
	if err != nil {
		return false, fmt.Errorf("claiming reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming reminder: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteReminderRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteReminderRepo) list(ctx context.Context, query string, args ...any) ([]health.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	defer rows.Close()

	reminders := make([]health.Reminder, 0)
	for rows.Next() {
		rem, err := scanSQLiteReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReminder(row rowScanner) (health.Reminder, error) {
	var (
		rem       health.Reminder
		createdAt string
	)
	if err := row.Scan(&rem.ID, &rem.UserID, &rem.Symptom, &rem.Advice, &rem.LastShown, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return health.Reminder{}, fmt.Errorf("reminder: %w", ErrNotFound)
		}
		return health.Reminder{}, fmt.Errorf("scanning reminder: %w", err)
	}
	var err error
	rem.CreatedAt, err = parseTime(createdAt)
	return rem, err
}

// SQLiteActivityRepo implements ActivityRepository using SQLite.
type SQLiteActivityRepo struct {
	db *sql.DB
}

func NewSQLiteActivityRepo(db *sql.DB) *SQLiteActivityRepo {
	return &SQLiteActivityRepo{db: db}
}

func (r *SQLiteActivityRepo) Create(ctx context.Context, a health.Activity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, type, duration, distance, date) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Type), a.Duration, a.Distance, formatTime(a.Date))
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

func (r *SQLiteActivityRepo) ListRecent(ctx context.Context, userID string, limit int) ([]health.Activity, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, duration, distance, date FROM activities WHERE user_id = ? ORDER BY date DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	activities := make([]health.Activity, 0)
	for rows.Next() {
		var (
			a    health.Activity
			kind string
			date string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &kind, &a.Duration, &a.Distance, &date); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		a.Type = health.ActivityType(kind)
		if a.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func (r *SQLiteActivityRepo) Summary(ctx context.Context, userID string) (health.ActivitySummary, error) {
	var summary health.ActivitySummary
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration), 0), COALESCE(SUM(distance), 0) FROM activities WHERE user_id = ?`, userID).
		Scan(&summary.Count, &summary.TotalMinutes, &summary.TotalDistance)
	if err != nil {
		return health.ActivitySummary{}, fmt.Errorf("summarising activities: %w", err)
	}
	return summary, nil
}

// 时间统一以 UTC RFC3339Nano 存储，保证字符串排序即时间排序。
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

func encodeAnalysis(a *health.SymptomAnalysis) (any, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	return string(data), nil
}

func decodeAnalysis(data []byte) (*health.SymptomAnalysis, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var a health.SymptomAnalysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding analysis: %w", err)
	}
	return &a, nil
}
