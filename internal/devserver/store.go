package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pulsedash/pulse/internal/api"
)

var (
	// ErrNoUser is returned when no user matches the lookup.
	ErrNoUser = errors.New("devserver: user not found")
	// ErrBadToken is returned for unknown or expired tokens.
	ErrBadToken = errors.New("devserver: unknown or expired token")
	// ErrNoMetrics is returned when no metrics period has been stored.
	ErrNoMetrics = errors.New("devserver: no metrics stored")
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'owner',
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_tokens_user ON tokens(user_id);

CREATE TABLE IF NOT EXISTS balances (
	period TEXT PRIMARY KEY,
	currency TEXT NOT NULL,
	income REAL NOT NULL,
	expenses REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS kpis (
	period TEXT NOT NULL,
	pos INTEGER NOT NULL,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	delta REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (period, pos)
);

CREATE TABLE IF NOT EXISTS segments (
	period TEXT NOT NULL,
	pos INTEGER NOT NULL,
	label TEXT NOT NULL,
	share REAL NOT NULL,
	PRIMARY KEY (period, pos)
);
`
	_, err := db.Exec(schema)
	return err
}

// User is a seeded demo account.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile converts the stored user to its wire shape.
func (u User) Profile() api.Profile {
	return api.Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Upsert inserts the user or, when the email already exists, refreshes the
// mutable fields. The original user ID is kept so issued tokens stay valid
// across reseeding.
func (s *UserStore) Upsert(ctx context.Context, u User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			password_hash = excluded.password_hash`,
		u.ID, u.Email, u.DisplayName, u.Role, u.PasswordHash, u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// ByEmail returns the user with the given email, or ErrNoUser.
func (s *UserStore) ByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, password_hash, created_at
		FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoUser
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

type TokenStore struct {
	db *DB
}

func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// Mint issues a fresh opaque token for the user.
func (s *TokenStore) Mint(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		token, userID, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

// Resolve returns the user the token belongs to. Unknown and expired tokens
// both come back as ErrBadToken.
func (s *TokenStore) Resolve(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.display_name, u.role, u.password_hash, u.created_at
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token = ? AND t.expires_at > ?`,
		token, time.Now().Unix())
	u, err := scanUser(row)
	if errors.Is(err, ErrNoUser) {
		return nil, ErrBadToken
	}
	return u, err
}

// Purge deletes expired tokens and reports how many were removed.
func (s *TokenStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return res.RowsAffected()
}

type MetricsStore struct {
	db *DB
}

func NewMetricsStore(db *DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// Replace swaps out the stored metrics for the overview's period in one
// transaction.
func (s *MetricsStore) Replace(ctx context.Context, o api.MetricsOverview) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM balances WHERE period = ?`,
		`DELETE FROM kpis WHERE period = ?`,
		`DELETE FROM segments WHERE period = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, o.Period); err != nil {
			return fmt.Errorf("clear period: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (period, currency, income, expenses)
		VALUES (?, ?, ?, ?)`,
		o.Period, o.Balance.Currency, o.Balance.Income, o.Balance.Expenses); err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	for i, kpi := range o.Ranking {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kpis (period, pos, name, value, unit, delta)
			VALUES (?, ?, ?, ?, ?, ?)`,
			o.Period, i, kpi.Name, kpi.Value, kpi.Unit, kpi.Delta); err != nil {
			return fmt.Errorf("insert kpi: %w", err)
		}
	}
	for i, seg := range o.Distribution {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO segments (period, pos, label, share)
			VALUES (?, ?, ?, ?)`,
			o.Period, i, seg.Label, seg.Share); err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
	}

	return tx.Commit()
}

// Latest assembles the overview for the most recent period. Periods sort
// lexically ("2026-08"), so MAX picks the newest. Net is derived, not stored.
func (s *MetricsStore) Latest(ctx context.Context) (*api.MetricsOverview, error) {
	o := &api.MetricsOverview{}

	row := s.db.QueryRowContext(ctx, `
		SELECT period, currency, income, expenses
		FROM balances WHERE period = (SELECT MAX(period) FROM balances)`)
	err := row.Scan(&o.Period, &o.Balance.Currency, &o.Balance.Income, &o.Balance.Expenses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMetrics
	}
	if err != nil {
		return nil, fmt.Errorf("scan balance: %w", err)
	}
	o.Balance.Net = o.Balance.Income - o.Balance.Expenses

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value, unit, delta FROM kpis
		WHERE period = ? ORDER BY pos`, o.Period)
	if err != nil {
		return nil, fmt.Errorf("query kpis: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kpi api.KPI
		if err := rows.Scan(&kpi.Name, &kpi.Value, &kpi.Unit, &kpi.Delta); err != nil {
			return nil, fmt.Errorf("scan kpi: %w", err)
		}
		o.Ranking = append(o.Ranking, kpi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpis: %w", err)
	}

	segRows, err := s.db.QueryContext(ctx, `
		SELECT label, share FROM segments
		WHERE period = ? ORDER BY pos`, o.Period)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer segRows.Close()
	for segRows.Next() {
		var seg api.Segment
		if err := segRows.Scan(&seg.Label, &seg.Share); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		o.Distribution = append(o.Distribution, seg)
	}
	if err := segRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}

	o.GeneratedAt = time.Now().UTC()
	return o, nil
}
