package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"numbot/core/logger"
	"numbot/internal/domain"
)

// stateLockKey identifies the advisory lock serializing state access.
// One process-wide document, one key.
const stateLockKey = 0x6e756d62 // "numb"

// PostgresStore keeps the same State document in relational tables.
// Serialization relies on a transaction-scoped advisory lock, so the
// load→mutate→save discipline matches the file backend.
type PostgresStore struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewPostgresStore wraps an already connected database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	log := logger.STORE
	if log == nil {
		log = slog.Default().With("component", "store")
	}
	return &PostgresStore{db: db, log: log}
}

type userRow struct {
	ID           int64          `db:"id"`
	DisplayName  string         `db:"display_name"`
	Approved     bool           `db:"approved"`
	AccountSID   sql.NullString `db:"account_sid"`
	AuthToken    sql.NullString `db:"auth_token"`
	CredUpdated  sql.NullTime   `db:"cred_updated_at"`
	JoinedAt     time.Time      `db:"joined_at"`
	LastActiveAt time.Time      `db:"last_active_at"`
}

type numberRow struct {
	Number     string    `db:"number"`
	OwnerID    int64     `db:"owner_id"`
	Position   int       `db:"position"`
	AssignedAt time.Time `db:"assigned_at"`
}

type pendingRow struct {
	UserID   int64 `db:"user_id"`
	Position int   `db:"position"`
}

// View runs fn over a consistent snapshot.
func (p *PostgresStore) View(ctx context.Context, fn func(s *State) error) error {
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		state, err := p.loadTx(ctx, tx)
		if err != nil {
			return err
		}
		return fn(state)
	})
}

// Update runs fn under the advisory lock and rewrites the document.
func (p *PostgresStore) Update(ctx context.Context, fn func(s *State) error) error {
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		state, err := p.loadTx(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return p.saveTx(ctx, tx, state)
	})
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", stateLockKey); err != nil {
		return fmt.Errorf("%w: advisory lock: %v", domain.ErrStoreIO, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreIO, err)
	}
	return nil
}

func (p *PostgresStore) loadTx(ctx context.Context, tx *sqlx.Tx) (*State, error) {
	state := NewState()

	var users []userRow
	if err := tx.SelectContext(ctx, &users, "SELECT id, display_name, approved, account_sid, auth_token, cred_updated_at, joined_at, last_active_at FROM users"); err != nil {
		return nil, fmt.Errorf("%w: load users: %v", domain.ErrStoreIO, err)
	}
	for _, r := range users {
		u := &domain.User{
			ID:           r.ID,
			DisplayName:  r.DisplayName,
			Approved:     r.Approved,
			JoinedAt:     r.JoinedAt,
			LastActiveAt: r.LastActiveAt,
		}
		if r.AccountSID.Valid && r.AuthToken.Valid {
			u.Credential = &domain.Credential{
				AccountSID: r.AccountSID.String,
				AuthToken:  r.AuthToken.String,
				UpdatedAt:  r.CredUpdated.Time,
			}
		}
		state.Users[u.ID] = u
	}

	var numbers []numberRow
	if err := tx.SelectContext(ctx, &numbers, "SELECT number, owner_id, position, assigned_at FROM numbers ORDER BY owner_id, position"); err != nil {
		return nil, fmt.Errorf("%w: load numbers: %v", domain.ErrStoreIO, err)
	}
	for _, r := range numbers {
		state.Numbers[r.Number] = domain.NumberRecord{Owner: r.OwnerID, AssignedAt: r.AssignedAt}
		if u, ok := state.Users[r.OwnerID]; ok {
			u.Numbers = append(u.Numbers, r.Number)
		}
	}

	var pending []pendingRow
	if err := tx.SelectContext(ctx, &pending, "SELECT user_id, position FROM pending_approvals ORDER BY position"); err != nil {
		return nil, fmt.Errorf("%w: load pending: %v", domain.ErrStoreIO, err)
	}
	for _, r := range pending {
		state.PendingApprovals = append(state.PendingApprovals, r.UserID)
	}

	if err := Validate(state); err != nil {
		p.log.Error("state invariant violated",
			slog.String("event", "store.load"),
			slog.String("backend", "postgres"),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	return state, nil
}

// saveTx rewrites the whole document. The state fits in memory by
// construction (one admin, a handful of users), so a full rewrite is
// simpler and safer than per-field diffing.
func (p *PostgresStore) saveTx(ctx context.Context, tx *sqlx.Tx, state *State) error {
	if err := Validate(state); err != nil {
		return err
	}

	for _, table := range []string{"pending_approvals", "numbers", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%w: clear %s: %v", domain.ErrStoreIO, table, err)
		}
	}

	const insertUser = `INSERT INTO users (id, display_name, approved, account_sid, auth_token, cred_updated_at, joined_at, last_active_at)
		VALUES (:id, :display_name, :approved, :account_sid, :auth_token, :cred_updated_at, :joined_at, :last_active_at)`
	for _, u := range state.Users {
		row := userRow{
			ID:           u.ID,
			DisplayName:  u.DisplayName,
			Approved:     u.Approved,
			JoinedAt:     u.JoinedAt,
			LastActiveAt: u.LastActiveAt,
		}
		if u.Credential != nil {
			row.AccountSID = sql.NullString{String: u.Credential.AccountSID, Valid: true}
			row.AuthToken = sql.NullString{String: u.Credential.AuthToken, Valid: true}
			row.CredUpdated = sql.NullTime{Time: u.Credential.UpdatedAt, Valid: true}
		}
		if _, err := tx.NamedExecContext(ctx, insertUser, row); err != nil {
			return fmt.Errorf("%w: insert user %d: %v", domain.ErrStoreIO, u.ID, err)
		}
	}

	const insertNumber = `INSERT INTO numbers (number, owner_id, position, assigned_at)
		VALUES (:number, :owner_id, :position, :assigned_at)`
	for _, u := range state.Users {
		for i, number := range u.Numbers {
			rec := state.Numbers[number]
			row := numberRow{Number: number, OwnerID: u.ID, Position: i, AssignedAt: rec.AssignedAt}
			if _, err := tx.NamedExecContext(ctx, insertNumber, row); err != nil {
				return fmt.Errorf("%w: insert number %s: %v", domain.ErrStoreIO, number, err)
			}
		}
	}

	const insertPending = `INSERT INTO pending_approvals (user_id, position) VALUES (:user_id, :position)`
	for i, id := range state.PendingApprovals {
		row := pendingRow{UserID: id, Position: i}
		if _, err := tx.NamedExecContext(ctx, insertPending, row); err != nil {
			return fmt.Errorf("%w: insert pending %d: %v", domain.ErrStoreIO, id, err)
		}
	}
	return nil
}
