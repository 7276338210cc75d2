// Package auth implements the session/authorization state machine: who
// may act, and whether the action needs a bound provider credential.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"numbot/core/logger"
	"numbot/internal/domain"
	"numbot/internal/provider"
	"numbot/internal/store"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Allowed permits the action.
	Allowed Decision = iota
	// PendingApproval means the account has not been approved yet.
	PendingApproval
	// CredentialRequired means the action needs a bound provider credential.
	CredentialRequired
	// AdminOnly means the action is reserved for the administrator.
	AdminOnly
)

// String names the decision for logs.
func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case PendingApproval:
		return "pending_approval"
	case CredentialRequired:
		return "credential_required"
	case AdminOnly:
		return "admin_only"
	}
	return "unknown"
}

// Err maps a non-Allowed decision to its sentinel.
func (d Decision) Err() error {
	switch d {
	case PendingApproval:
		return domain.ErrPendingApproval
	case CredentialRequired:
		return domain.ErrCredentialRequired
	case AdminOnly:
		return domain.ErrAdminOnly
	}
	return nil
}

// Action describes the privilege requirements of an operation.
type Action struct {
	Name            string
	AdminOnly       bool
	CredentialGated bool
}

// Gate decides, per incoming event, whether the acting user may proceed.
type Gate struct {
	store    store.Store
	provider provider.Client
	adminID  int64
	log      *slog.Logger
}

// NewGate builds the authorization gate for the single administrator id.
func NewGate(st store.Store, pc provider.Client, adminID int64) *Gate {
	log := logger.AUTH
	if log == nil {
		log = slog.Default().With("component", "auth")
	}
	return &Gate{store: st, provider: pc, adminID: adminID, log: log}
}

// AdminID exposes the configured administrator identity.
func (g *Gate) AdminID() int64 { return g.adminID }

// EnsureUser is the idempotent first-contact bootstrap, invoked at the
// top of event handling and kept separate from the authorization
// decision. It creates the record on first sight (approved only for the
// administrator), enqueues non-admin users exactly once, and stamps
// activity. The returned flag reports whether this was first contact.
func (g *Gate) EnsureUser(ctx context.Context, id int64, displayName string) (bool, error) {
	created := false
	err := g.store.Update(ctx, func(s *store.State) error {
		now := time.Now().UTC()
		u, ok := s.Users[id]
		if !ok {
			created = true
			u = &domain.User{
				ID:          id,
				DisplayName: displayName,
				Approved:    id == g.adminID,
				JoinedAt:    now,
			}
			s.Users[id] = u
			if !u.Approved {
				s.Enqueue(id)
			}
			g.log.Info("user registered",
				slog.String("event", "auth.ensure"),
				slog.Int64("user_id", id),
				slog.Bool("approved", u.Approved),
				slog.Int("pending_count", len(s.PendingApprovals)),
			)
		}
		if displayName != "" {
			u.DisplayName = displayName
		}
		u.LastActiveAt = now
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Authorize evaluates the decision rules in order over existing state.
// It never mutates; EnsureUser must have run for the acting user.
func (g *Gate) Authorize(ctx context.Context, id int64, action Action) (Decision, error) {
	decision := Allowed
	err := g.store.View(ctx, func(s *store.State) error {
		u, ok := s.Users[id]
		if !ok {
			return domain.ErrUnknownUser
		}
		switch {
		case action.AdminOnly && id != g.adminID:
			decision = AdminOnly
		case !u.Approved:
			decision = PendingApproval
		case action.CredentialGated && !u.HasCredential():
			decision = CredentialRequired
		}
		return nil
	})
	if err != nil {
		return Allowed, err
	}
	if decision != Allowed {
		g.log.Info("action denied",
			slog.String("event", "auth.decision"),
			slog.Int64("user_id", id),
			slog.String("action", action.Name),
			slog.String("decision", decision.String()),
		)
	}
	return decision, nil
}

// BindCredential validates and stores a provider credential pair.
// Format check first so malformed input never reaches the network; the
// live round trip runs outside the store lock. Approval is re-checked
// on every call: a user revoked while the login dialog is open must not
// trigger a provider round trip or a commit.
func (g *Gate) BindCredential(ctx context.Context, id int64, accountSID, authToken string) error {
	cred := domain.Credential{AccountSID: accountSID, AuthToken: authToken}
	if !cred.WellFormed() {
		return domain.ErrMalformedCredential
	}
	if err := g.requireApproved(ctx, id); err != nil {
		return err
	}
	if !g.provider.Validate(ctx, cred) {
		return domain.ErrCredentialRejected
	}
	cred.UpdatedAt = time.Now().UTC()

	return g.store.Update(ctx, func(s *store.State) error {
		u, ok := s.Users[id]
		if !ok {
			return domain.ErrUnknownUser
		}
		if !u.Approved {
			// revoked between the live check and the commit
			return domain.ErrPendingApproval
		}
		u.Credential = &cred
		g.log.Info("credential bound",
			slog.String("event", "auth.bind"),
			slog.Int64("user_id", id),
		)
		return nil
	})
}

// UnbindCredential drops the stored credential. Owned numbers are kept;
// releasing them stays an explicit operation.
func (g *Gate) UnbindCredential(ctx context.Context, id int64) error {
	return g.store.Update(ctx, func(s *store.State) error {
		u, ok := s.Users[id]
		if !ok {
			return domain.ErrUnknownUser
		}
		if !u.Approved {
			return domain.ErrPendingApproval
		}
		if u.Credential == nil {
			return domain.ErrCredentialRequired
		}
		u.Credential = nil
		g.log.Info("credential unbound",
			slog.String("event", "auth.unbind"),
			slog.Int64("user_id", id),
		)
		return nil
	})
}

// requireApproved rejects acting users whose approval has been revoked.
// Rule order matches Authorize: pending beats credential-required.
func (g *Gate) requireApproved(ctx context.Context, id int64) error {
	return g.store.View(ctx, func(s *store.State) error {
		u, ok := s.Users[id]
		if !ok {
			return domain.ErrUnknownUser
		}
		if !u.Approved {
			return domain.ErrPendingApproval
		}
		return nil
	})
}

// Credential returns the user's bound pair for provider calls. Approval
// is re-checked on every read so a revocation takes effect immediately,
// even inside an open dialog or callback flow.
func (g *Gate) Credential(ctx context.Context, id int64) (domain.Credential, error) {
	var cred domain.Credential
	err := g.store.View(ctx, func(s *store.State) error {
		u, ok := s.Users[id]
		if !ok {
			return domain.ErrUnknownUser
		}
		if !u.Approved {
			return domain.ErrPendingApproval
		}
		if !u.HasCredential() {
			return domain.ErrCredentialRequired
		}
		cred = *u.Credential
		return nil
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

// Balance fetches the provider account balance with the user's credential.
func (g *Gate) Balance(ctx context.Context, id int64) (string, error) {
	cred, err := g.Credential(ctx, id)
	if err != nil {
		return "", err
	}
	balance, err := g.provider.Balance(ctx, cred)
	if err != nil {
		return "", fmt.Errorf("fetch balance: %w", err)
	}
	return balance, nil
}
