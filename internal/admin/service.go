// Package admin mutates the approval queue and projects store state for
// the administrator.
package admin

import (
	"context"
	"log/slog"
	"sort"

	"numbot/core/logger"
	"numbot/internal/domain"
	"numbot/internal/store"
)

// Notifier delivers advisory messages to users. Failures are logged,
// never propagated: notification is not part of the approval contract.
type Notifier func(ctx context.Context, userID int64, text string) error

// Service implements the administrator workflow.
type Service struct {
	store   store.Store
	adminID int64
	notify  Notifier
	log     *slog.Logger
}

// NewService builds the admin workflow. notify may be nil.
func NewService(st store.Store, adminID int64, notify Notifier) *Service {
	log := logger.ADM
	if log == nil {
		log = slog.Default().With("component", "admin")
	}
	return &Service{store: st, adminID: adminID, notify: notify, log: log}
}

// Approve grants access to a known user and removes it from the pending
// queue exactly once. Approving an already approved user is a no-op.
func (s *Service) Approve(ctx context.Context, targetID int64) error {
	already := false
	err := s.store.Update(ctx, func(st *store.State) error {
		u, ok := st.Users[targetID]
		if !ok {
			return domain.ErrUnknownUser
		}
		already = u.Approved
		u.Approved = true
		st.Dequeue(targetID)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("user approved",
		slog.String("event", "admin.approve"),
		slog.Int64("target_id", targetID),
		slog.Bool("already", already),
	)

	if !already && s.notify != nil {
		if err := s.notify(ctx, targetID, "✅ Your account has been approved. Send /start to begin."); err != nil {
			s.log.Warn("approval notify failed",
				slog.String("event", "admin.notify"),
				slog.Int64("target_id", targetID),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}

// Block revokes approval. The user returns to the pending queue and
// every gated action answers with the pending-approval message again.
// The administrator cannot be blocked.
func (s *Service) Block(ctx context.Context, targetID int64) error {
	if targetID == s.adminID {
		return domain.ErrAdminOnly
	}
	err := s.store.Update(ctx, func(st *store.State) error {
		u, ok := st.Users[targetID]
		if !ok {
			return domain.ErrUnknownUser
		}
		u.Approved = false
		st.Enqueue(targetID)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("user blocked",
		slog.String("event", "admin.block"),
		slog.Int64("target_id", targetID),
	)
	return nil
}

// UserSummary is a read-only projection of one account.
type UserSummary struct {
	ID          int64
	DisplayName string
	Approved    bool
	HasCred     bool
	Numbers     int
}

// ListUsers returns all known accounts. Never mutates state.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	var out []UserSummary
	err := s.store.View(ctx, func(st *store.State) error {
		for _, u := range st.Users {
			out = append(out, UserSummary{
				ID:          u.ID,
				DisplayName: u.DisplayName,
				Approved:    u.Approved,
				HasCred:     u.HasCredential(),
				Numbers:     len(u.Numbers),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListPending returns the approval queue in arrival order.
func (s *Service) ListPending(ctx context.Context) ([]UserSummary, error) {
	var out []UserSummary
	err := s.store.View(ctx, func(st *store.State) error {
		for _, id := range st.PendingApprovals {
			u, ok := st.Users[id]
			if !ok {
				continue
			}
			out = append(out, UserSummary{
				ID:          u.ID,
				DisplayName: u.DisplayName,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
