// Package store is the single source of truth for user records, number
// ownership and the pending-approval queue. Every mutation is a
// serialized load→mutate→save cycle behind one mutual exclusion
// boundary; a failed save discards the in-memory mutation.
package store

import (
	"context"
	"fmt"

	"numbot/internal/domain"
)

// State is the full persisted document.
type State struct {
	Users            map[int64]*domain.User         `json:"users"`
	Numbers          map[string]domain.NumberRecord `json:"numbers"`
	PendingApprovals []int64                        `json:"pending_approvals"`
}

// NewState returns the empty default state used for first-run bootstrap.
func NewState() *State {
	return &State{
		Users:   make(map[int64]*domain.User),
		Numbers: make(map[string]domain.NumberRecord),
	}
}

// Store serializes access to the shared state. Update runs fn under the
// exclusion boundary and persists the mutated state only when fn returns
// nil. View runs fn over a snapshot; mutations made by fn are discarded.
type Store interface {
	View(ctx context.Context, fn func(s *State) error) error
	Update(ctx context.Context, fn func(s *State) error) error
}

// Validate checks the cross-entity invariants. A decodable state that
// fails here is corruption: mutations must halt until an operator
// intervenes, never silently repair.
func Validate(s *State) error {
	if s == nil {
		return fmt.Errorf("%w: nil state", domain.ErrCorruptState)
	}
	for number, rec := range s.Numbers {
		owner, ok := s.Users[rec.Owner]
		if !ok {
			return fmt.Errorf("%w: number %s owned by unknown user %d", domain.ErrCorruptState, number, rec.Owner)
		}
		if !owner.Owns(number) {
			return fmt.Errorf("%w: index owner %d does not list number %s", domain.ErrCorruptState, rec.Owner, number)
		}
	}
	for id, u := range s.Users {
		if u == nil {
			return fmt.Errorf("%w: nil user record %d", domain.ErrCorruptState, id)
		}
		for _, number := range u.Numbers {
			rec, ok := s.Numbers[number]
			if !ok {
				return fmt.Errorf("%w: owned number %s missing from index", domain.ErrCorruptState, number)
			}
			if rec.Owner != id {
				return fmt.Errorf("%w: number %s owned by both %d and %d", domain.ErrCorruptState, number, id, rec.Owner)
			}
		}
	}
	seen := make(map[int64]struct{}, len(s.PendingApprovals))
	for _, id := range s.PendingApprovals {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate pending entry %d", domain.ErrCorruptState, id)
		}
		seen[id] = struct{}{}
		u, ok := s.Users[id]
		if !ok {
			return fmt.Errorf("%w: pending entry %d has no user record", domain.ErrCorruptState, id)
		}
		if u.Approved {
			return fmt.Errorf("%w: approved user %d still pending", domain.ErrCorruptState, id)
		}
	}
	return nil
}

// Enqueue appends id to the pending queue exactly once.
func (s *State) Enqueue(id int64) {
	for _, p := range s.PendingApprovals {
		if p == id {
			return
		}
	}
	s.PendingApprovals = append(s.PendingApprovals, id)
}

// Dequeue removes id from the pending queue, preserving order.
func (s *State) Dequeue(id int64) {
	for i, p := range s.PendingApprovals {
		if p == id {
			s.PendingApprovals = append(s.PendingApprovals[:i], s.PendingApprovals[i+1:]...)
			return
		}
	}
}
