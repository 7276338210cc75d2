// Package numbers owns the acquire / list / inbox / release lifecycle
// of provisioned phone numbers, layering ownership checks on top of the
// authorization gate.
package numbers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"numbot/core/logger"
	"numbot/internal/auth"
	"numbot/internal/domain"
	"numbot/internal/provider"
	"numbot/internal/store"
)

// Manager sequences provider calls and store commits. Provider round
// trips never run under the store lock; the lock covers only the brief
// commit step after the call succeeded.
type Manager struct {
	store    store.Store
	provider provider.Client
	gate     *auth.Gate
	log      *slog.Logger

	// InboxLimit caps messages fetched per inbox request.
	InboxLimit int
}

// NewManager wires the lifecycle manager.
func NewManager(st store.Store, pc provider.Client, gate *auth.Gate) *Manager {
	log := logger.NUM
	if log == nil {
		log = slog.Default().With("component", "numbers")
	}
	return &Manager{store: st, provider: pc, gate: gate, log: log}
}

// Acquire purchases a number for the selector and commits ownership.
// A provider-returned number already present in the global index is a
// conflict: surfaced as retryable, never overwritten.
func (m *Manager) Acquire(ctx context.Context, userID int64, selector string) (string, error) {
	cred, err := m.gate.Credential(ctx, userID)
	if err != nil {
		return "", err
	}

	number, err := m.provider.AcquireNumber(ctx, cred, selector)
	if err != nil {
		return "", fmt.Errorf("acquire number: %w", err)
	}

	err = m.store.Update(ctx, func(s *store.State) error {
		u, ok := s.Users[userID]
		if !ok {
			return domain.ErrUnknownUser
		}
		if _, taken := s.Numbers[number]; taken {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateNumber, number)
		}
		u.AddNumber(number)
		s.Numbers[number] = domain.NumberRecord{Owner: userID, AssignedAt: time.Now().UTC()}
		return nil
	})
	if err != nil {
		m.log.Error("acquire commit failed",
			slog.String("event", "numbers.acquire"),
			slog.Int64("user_id", userID),
			slog.String("number", number),
			slog.String("err", err.Error()),
		)
		return "", err
	}

	m.log.Info("number acquired",
		slog.String("event", "numbers.acquire"),
		slog.Int64("user_id", userID),
		slog.String("number", number),
		slog.String("selector", selector),
	)
	return number, nil
}

// List returns the user's owned numbers in acquisition order.
func (m *Manager) List(ctx context.Context, userID int64) ([]string, error) {
	var numbers []string
	err := m.store.View(ctx, func(s *store.State) error {
		u, ok := s.Users[userID]
		if !ok {
			return domain.ErrUnknownUser
		}
		numbers = append([]string(nil), u.Numbers...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

// Inbox fetches messages for an owned number and surfaces candidate
// one-time codes. The ownership check is independent of the credential
// gate: the number must belong to this caller, full stop. An empty code
// list is a normal outcome, not an error.
func (m *Manager) Inbox(ctx context.Context, userID int64, number string) ([]string, error) {
	if err := m.requireOwner(ctx, userID, number); err != nil {
		return nil, err
	}
	cred, err := m.gate.Credential(ctx, userID)
	if err != nil {
		return nil, err
	}

	msgs, err := m.provider.FetchMessages(ctx, cred, number, m.InboxLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch inbox: %w", err)
	}

	bodies := make([]string, len(msgs))
	for i, msg := range msgs {
		bodies[i] = msg.Body
	}
	codes := ExtractCodes(bodies)

	m.log.Info("inbox scanned",
		slog.String("event", "numbers.inbox"),
		slog.Int64("user_id", userID),
		slog.String("number", number),
		slog.Int("messages", len(msgs)),
		slog.Int("codes", len(codes)),
	)
	return codes, nil
}

// Release gives the number back to the provider and removes it from
// both the owned set and the global index. Ownership is re-validated
// here because the confirmation callback may race an earlier release.
func (m *Manager) Release(ctx context.Context, userID int64, number string) error {
	if err := m.requireOwner(ctx, userID, number); err != nil {
		return err
	}
	cred, err := m.gate.Credential(ctx, userID)
	if err != nil {
		return err
	}

	if err := m.provider.ReleaseNumber(ctx, cred, number); err != nil {
		return fmt.Errorf("release number: %w", err)
	}

	err = m.store.Update(ctx, func(s *store.State) error {
		u, ok := s.Users[userID]
		if !ok {
			return domain.ErrUnknownUser
		}
		rec, tracked := s.Numbers[number]
		if !tracked || rec.Owner != userID || !u.Owns(number) {
			return fmt.Errorf("%w: %s", domain.ErrNotOwned, number)
		}
		u.RemoveNumber(number)
		delete(s.Numbers, number)
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("number released",
		slog.String("event", "numbers.release"),
		slog.Int64("user_id", userID),
		slog.String("number", number),
	)
	return nil
}

// requireOwner verifies that the number is tracked and owned by userID.
func (m *Manager) requireOwner(ctx context.Context, userID int64, number string) error {
	return m.store.View(ctx, func(s *store.State) error {
		rec, ok := s.Numbers[number]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownNumber, number)
		}
		if rec.Owner != userID {
			return fmt.Errorf("%w: %s", domain.ErrNotOwned, number)
		}
		return nil
	})
}
