// Package sqlite provides SQLite-based persistent storage for Janus.
// Uses WAL mode for concurrent reads and crash-safe writes.
//
// Every state-mutating governance operation runs inside a single Tx so
// that poll tallies, ledger movements and audit rows commit or abort
// together. Uniqueness constraints that the engine relies on — one vote
// and one stake per (poll, user, identity) — are enforced here by primary
// keys, not merely at the application layer.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/janus-network/janus/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// ─── Transactions ───────────────────────────────────────────────────────────

// Tx is the unit-of-work handle passed through every call chain. It
// satisfies domain.Tx, so the ledger and reputation collaborators run
// inside the same transaction as the engine's own writes.
type Tx struct {
	tx *sql.Tx
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(query, args...)
}

// Query runs a query inside the transaction.
func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(query, args...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(query, args...)
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error. All row changes an operation makes — including ledger calls
// routed through the same Tx — commit together or not at all.
func (d *DB) WithTx(fn func(*Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	t := &Tx{tx: tx}
	if err := fn(t); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Read runs fn inside a read-only transaction for a consistent snapshot.
func (d *DB) Read(fn func(*Tx) error) error {
	return d.WithTx(fn)
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Polls. Multipliers are the 7-entry section table, encoded as a
		// comma-joined string, written once at creation.
		`CREATE TABLE IF NOT EXISTS polls (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			type           TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			creator_id     TEXT NOT NULL,
			starts_at      INTEGER NOT NULL,
			ends_at        INTEGER NOT NULL,
			multipliers    TEXT NOT NULL,
			quorum         INTEGER NOT NULL,
			threshold_pct  REAL NOT NULL,
			super_majority BOOLEAN NOT NULL DEFAULT 0,
			param_name     TEXT NOT NULL DEFAULT '',
			param_old      TEXT NOT NULL DEFAULT '',
			param_new      TEXT NOT NULL DEFAULT '',
			action_id      TEXT NOT NULL DEFAULT '',
			yes_count      INTEGER NOT NULL DEFAULT 0,
			no_count       INTEGER NOT NULL DEFAULT 0,
			abstain_count  INTEGER NOT NULL DEFAULT 0,
			yes_weight     INTEGER NOT NULL DEFAULT 0,
			no_weight      INTEGER NOT NULL DEFAULT 0,
			abstain_weight INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL,
			closed_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_polls_status ON polls(status)`,
		`CREATE INDEX IF NOT EXISTS idx_polls_type ON polls(type)`,

		// Votes. The primary key is the storage-layer guarantee that two
		// concurrent casts by the same identity can never both succeed.
		`CREATE TABLE IF NOT EXISTS votes (
			poll_id      TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			mode         TEXT NOT NULL,
			option       TEXT NOT NULL,
			section      INTEGER NOT NULL,
			multiplier   REAL NOT NULL,
			base_weight  INTEGER NOT NULL,
			final_weight INTEGER NOT NULL,
			reasoning    TEXT NOT NULL DEFAULT '',
			change_count INTEGER NOT NULL DEFAULT 0,
			delegated    BOOLEAN NOT NULL DEFAULT 0,
			cast_at      INTEGER NOT NULL,
			displayed_at INTEGER NOT NULL,
			PRIMARY KEY (poll_id, user_id, mode)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_user ON votes(user_id)`,

		// Vote delegations, one per (delegator, mode).
		`CREATE TABLE IF NOT EXISTS delegations (
			delegator_id TEXT NOT NULL,
			mode         TEXT NOT NULL,
			delegate_id  TEXT NOT NULL,
			active       BOOLEAN NOT NULL DEFAULT 1,
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (delegator_id, mode)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delegations_delegate ON delegations(delegate_id)`,

		// Stake pools, one per poll, created with it.
		`CREATE TABLE IF NOT EXISTS stake_pools (
			poll_id       TEXT PRIMARY KEY,
			status        TEXT NOT NULL DEFAULT 'open',
			yes_total     INTEGER NOT NULL DEFAULT 0,
			no_total      INTEGER NOT NULL DEFAULT 0,
			yes_count     INTEGER NOT NULL DEFAULT 0,
			no_count      INTEGER NOT NULL DEFAULT 0,
			largest_stake INTEGER NOT NULL DEFAULT 0,
			retained      INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			closed_at     INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS stakes (
			id        TEXT PRIMARY KEY,
			poll_id   TEXT NOT NULL,
			user_id   TEXT NOT NULL,
			mode      TEXT NOT NULL,
			position  TEXT NOT NULL,
			amount    INTEGER NOT NULL,
			status    TEXT NOT NULL DEFAULT 'active',
			reward    INTEGER NOT NULL DEFAULT 0,
			placed_at INTEGER NOT NULL,
			UNIQUE (poll_id, user_id, mode)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stakes_poll ON stakes(poll_id)`,

		// Parameter registry.
		`CREATE TABLE IF NOT EXISTS parameters (
			name           TEXT PRIMARY KEY,
			value          TEXT NOT NULL,
			default_value  TEXT NOT NULL,
			type           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			min_value      REAL,
			max_value      REAL,
			voteable       BOOLEAN NOT NULL DEFAULT 1,
			super_majority BOOLEAN NOT NULL DEFAULT 0,
			frozen_until   INTEGER,
			rollback_count INTEGER NOT NULL DEFAULT 0,
			updated_at     INTEGER NOT NULL
		)`,

		// Constitutional articles are seeded from code for listing only;
		// the protected-rule checks live in the guard, not in SQL.
		`CREATE TABLE IF NOT EXISTS constitutional_articles (
			number INTEGER PRIMARY KEY,
			title  TEXT NOT NULL,
			rule   TEXT NOT NULL
		)`,

		// Actions.
		`CREATE TABLE IF NOT EXISTS actions (
			id                TEXT PRIMARY KEY,
			poll_id           TEXT NOT NULL,
			type              TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'scheduled',
			param_name        TEXT NOT NULL,
			old_value         TEXT NOT NULL DEFAULT '',
			new_value         TEXT NOT NULL DEFAULT '',
			scheduled_at      INTEGER NOT NULL,
			executed_at       INTEGER,
			rollback_deadline INTEGER,
			rolled_back_at    INTEGER,
			rollback_by       TEXT NOT NULL DEFAULT '',
			error             TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_sched ON actions(scheduled_at)`,

		// Rollback petitions.
		`CREATE TABLE IF NOT EXISTS petitions (
			id         TEXT PRIMARY KEY,
			action_id  TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'open',
			poll_id    TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS petition_signatures (
			petition_id TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			signed_at   INTEGER NOT NULL,
			PRIMARY KEY (petition_id, user_id)
		)`,

		// Founder rollback token bucket — a single row.
		`CREATE TABLE IF NOT EXISTS founder_state (
			id               INTEGER PRIMARY KEY CHECK (id = 1),
			tokens_remaining INTEGER NOT NULL,
			launched_at      INTEGER NOT NULL
		)`,

		// Shadow Consensus reports, upserted per poll.
		`CREATE TABLE IF NOT EXISTS consensus_reports (
			poll_id       TEXT PRIMARY KEY,
			true_yes      INTEGER NOT NULL,
			true_no       INTEGER NOT NULL,
			true_abstain  INTEGER NOT NULL,
			shadow_yes    INTEGER NOT NULL,
			shadow_no     INTEGER NOT NULL,
			shadow_abstain INTEGER NOT NULL,
			true_pct      REAL NOT NULL,
			shadow_pct    REAL NOT NULL,
			true_ci       REAL NOT NULL,
			shadow_ci     REAL NOT NULL,
			gap           REAL NOT NULL,
			average_ci    REAL NOT NULL,
			alignment     TEXT NOT NULL,
			trend         TEXT NOT NULL,
			computed_at   INTEGER NOT NULL
		)`,

		// Token ledger: balances keyed (user, mode, token) plus an
		// append-only journal. Locked amounts stay part of holdings but
		// are invisible to availability checks.
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			user_id  TEXT NOT NULL,
			mode     TEXT NOT NULL,
			token    TEXT NOT NULL,
			balance  INTEGER NOT NULL DEFAULT 0,
			locked   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, mode, token)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			user_id    TEXT NOT NULL,
			mode       TEXT NOT NULL,
			token      TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			reference  TEXT NOT NULL DEFAULT '',
			memo       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id, mode, token)`,

		// Users: reputation score, verified-human flag, deletion marker
		// (feeds the automatic rollback trigger).
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			reputation INTEGER NOT NULL DEFAULT 50,
			verified   BOOLEAN NOT NULL DEFAULT 0,
			deleted    BOOLEAN NOT NULL DEFAULT 0,
			deleted_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_deleted ON users(deleted_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

// encodeMultipliers joins the section table into its stored form.
func encodeMultipliers(m [domain.SectionCount]float64) string {
	parts := make([]string, domain.SectionCount)
	for i, v := range m {
		parts[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strings.Join(parts, ",")
}

// decodeMultipliers parses the stored section table.
func decodeMultipliers(s string) ([domain.SectionCount]float64, error) {
	var out [domain.SectionCount]float64
	parts := strings.Split(s, ",")
	if len(parts) != domain.SectionCount {
		return out, fmt.Errorf("multiplier table has %d entries, want %d", len(parts), domain.SectionCount)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return out, fmt.Errorf("multiplier %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
