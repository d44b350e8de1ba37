package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/marinova/oceanmeter/pkg/plans"
)

// dialect captures the SQL differences between the supported databases
type dialect struct {
	name      string
	numbered  bool   // $1 placeholders instead of ?
	forUpdate string // row lock clause appended to the ledger select
	schema    []string
}

var postgresDialect = dialect{
	name:      "postgres",
	numbered:  true,
	forUpdate: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS credit_ledgers (
			user_id TEXT PRIMARY KEY,
			subscription_status TEXT NOT NULL DEFAULT 'free',
			usage_credits INTEGER NOT NULL DEFAULT 5 CHECK (usage_credits >= 0),
			weather_brief_credits INTEGER NOT NULL DEFAULT 0 CHECK (weather_brief_credits >= -1),
			research_lab_credits INTEGER NOT NULL DEFAULT 0 CHECK (research_lab_credits >= -1),
			chat_credits INTEGER NOT NULL DEFAULT 0 CHECK (chat_credits >= -1),
			insights_credits INTEGER NOT NULL DEFAULT 0 CHECK (insights_credits >= -1),
			credit_reset_date TIMESTAMPTZ NOT NULL,
			is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS usage_history (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES credit_ledgers(user_id) ON DELETE CASCADE,
			feature TEXT NOT NULL,
			used_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_history_user ON usage_history(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_history_used_at ON usage_history(used_at)`,
	},
}

var sqliteDialect = dialect{
	name: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS credit_ledgers (
			user_id TEXT PRIMARY KEY,
			subscription_status TEXT NOT NULL DEFAULT 'free',
			usage_credits INTEGER NOT NULL DEFAULT 5 CHECK (usage_credits >= 0),
			weather_brief_credits INTEGER NOT NULL DEFAULT 0 CHECK (weather_brief_credits >= -1),
			research_lab_credits INTEGER NOT NULL DEFAULT 0 CHECK (research_lab_credits >= -1),
			chat_credits INTEGER NOT NULL DEFAULT 0 CHECK (chat_credits >= -1),
			insights_credits INTEGER NOT NULL DEFAULT 0 CHECK (insights_credits >= -1),
			credit_reset_date TIMESTAMP NOT NULL,
			is_email_verified BOOLEAN NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS usage_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES credit_ledgers(user_id) ON DELETE CASCADE,
			feature TEXT NOT NULL,
			used_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_history_user ON usage_history(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_history_used_at ON usage_history(used_at)`,
	},
}

// rebind rewrites ? placeholders for dialects with numbered parameters
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore persists ledgers in credit_ledgers and usage_history.
// Postgres serializes updates with SELECT ... FOR UPDATE; SQLite relies on
// immediate transactions (open the database with _txlock=immediate).
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewPostgresStore creates a store on a lib/pq connection
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: postgresDialect, now: time.Now}
}

// NewSQLiteStore creates a store on a go-sqlite3 connection
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: sqliteDialect, now: time.Now}
}

// DB returns the underlying connection pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the driver name of the store
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Rebind converts a ? query to the store's placeholder style
func (s *SQLStore) Rebind(query string) string {
	return s.dialect.rebind(query)
}

// Migrate creates the ledger tables if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate ledger schema: %w", err)
		}
	}
	return nil
}

const selectLedger = `SELECT user_id, subscription_status, usage_credits,
	weather_brief_credits, research_lab_credits, chat_credits, insights_credits,
	credit_reset_date, is_email_verified, version
	FROM credit_ledgers WHERE user_id = ?`

const selectHistory = `SELECT feature, used_at FROM usage_history WHERE user_id = ? ORDER BY id`

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get loads a ledger and its full history
func (s *SQLStore) Get(ctx context.Context, userID string) (*Ledger, error) {
	l, err := s.load(ctx, s.db, userID, false)
	if err != nil {
		return nil, err
	}
	if l.UsageHistory, err = s.loadHistory(ctx, s.db, userID); err != nil {
		return nil, err
	}
	return l, nil
}

// load reads the credit_ledgers row. UsageHistory is left empty.
func (s *SQLStore) load(ctx context.Context, q queryer, userID string, lock bool) (*Ledger, error) {
	query := selectLedger
	if lock {
		query += s.dialect.forUpdate
	}

	var (
		l                                 Ledger
		tier                              string
		weather, research, chat, insights int
	)
	err := q.QueryRowContext(ctx, s.dialect.rebind(query), userID).Scan(
		&l.UserID, &tier, &l.UsageCredits,
		&weather, &research, &chat, &insights,
		&l.CreditResetDate, &l.IsEmailVerified, &l.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	t, ok := plans.ParseTier(tier)
	if !ok {
		return nil, fmt.Errorf("ledger %s has unknown subscription status %q", userID, tier)
	}
	l.SubscriptionStatus = t
	l.CreditResetDate = l.CreditResetDate.UTC()

	for f, v := range map[plans.Feature]int{
		plans.FeatureWeatherBrief: weather,
		plans.FeatureResearchLab:  research,
		plans.FeatureChat:         chat,
		plans.FeatureInsights:     insights,
	} {
		a, err := plans.ParseAllowance(v)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: %w", userID, err)
		}
		l.MonthlyCredits.Set(f, a)
	}
	l.UsageHistory = []UsageEntry{}

	return &l, nil
}

func (s *SQLStore) loadHistory(ctx context.Context, q queryer, userID string) ([]UsageEntry, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(selectHistory), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage history: %w", err)
	}
	defer rows.Close()

	history := []UsageEntry{}
	for rows.Next() {
		var (
			e       UsageEntry
			feature string
		)
		if err := rows.Scan(&feature, &e.UsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage history: %w", err)
		}
		e.Feature = plans.Feature(feature)
		e.UsedAt = e.UsedAt.UTC()
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage history: %w", err)
	}
	return history, nil
}

// Create inserts a new ledger
func (s *SQLStore) Create(ctx context.Context, l *Ledger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM credit_ledgers WHERE user_id = ?`), l.UserID).Scan(&exists)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check ledger: %w", err)
	}

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO credit_ledgers (
		user_id, subscription_status, usage_credits,
		weather_brief_credits, research_lab_credits, chat_credits, insights_credits,
		credit_reset_date, is_email_verified, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.UserID, string(l.SubscriptionStatus), l.UsageCredits,
		l.MonthlyCredits.WeatherBrief.Int(), l.MonthlyCredits.ResearchLab.Int(),
		l.MonthlyCredits.Chat.Int(), l.MonthlyCredits.Insights.Int(),
		l.CreditResetDate.UTC(), l.IsEmailVerified, l.Version, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	if err := s.insertHistory(ctx, tx, l.UserID, l.UsageHistory); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

// Update runs fn inside a transaction holding the user's row. usage_history
// is only inserted into, never read.
func (s *SQLStore) Update(ctx context.Context, userID string, fn UpdateFunc) (*Ledger, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.load(ctx, tx, userID, true)
	if err != nil {
		return nil, err
	}

	work := current.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UserID = userID
	work.Version = current.Version + 1

	res, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE credit_ledgers SET
		subscription_status = ?, usage_credits = ?,
		weather_brief_credits = ?, research_lab_credits = ?, chat_credits = ?, insights_credits = ?,
		credit_reset_date = ?, is_email_verified = ?, version = ?, updated_at = ?
		WHERE user_id = ? AND version = ?`),
		string(work.SubscriptionStatus), work.UsageCredits,
		work.MonthlyCredits.WeatherBrief.Int(), work.MonthlyCredits.ResearchLab.Int(),
		work.MonthlyCredits.Chat.Int(), work.MonthlyCredits.Insights.Int(),
		work.CreditResetDate.UTC(), work.IsEmailVerified, work.Version, s.now().UTC(),
		userID, current.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update ledger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}

	if err := s.insertHistory(ctx, tx, userID, work.UsageHistory); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ledger: %w", err)
	}
	return work, nil
}

func (s *SQLStore) insertHistory(ctx context.Context, tx *sql.Tx, userID string, entries []UsageEntry) error {
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO usage_history (user_id, feature, used_at) VALUES (?, ?, ?)`),
			userID, string(e.Feature), e.UsedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to append usage history: %w", err)
		}
	}
	return nil
}
