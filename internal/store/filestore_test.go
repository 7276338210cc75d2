package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numbot/internal/domain"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return NewFileStore(path), path
}

func TestFileStoreBootstrapsEmpty(t *testing.T) {
	fs, _ := newTestStore(t)

	err := fs.View(context.Background(), func(s *State) error {
		assert.Empty(t, s.Users)
		assert.Empty(t, s.Numbers)
		assert.Empty(t, s.PendingApprovals)
		return nil
	})
	require.NoError(t, err)
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := fs.Update(ctx, func(s *State) error {
		s.Users[100] = &domain.User{
			ID:          100,
			DisplayName: "Alice",
			Approved:    true,
			Credential: &domain.Credential{
				AccountSID: "AC" + "0123456789abcdef0123456789abcdef",
				AuthToken:  "0123456789abcdef0123456789abcdef",
				UpdatedAt:  now,
			},
			Numbers:      []string{"+15550010001"},
			JoinedAt:     now,
			LastActiveAt: now,
		}
		s.Users[200] = &domain.User{ID: 200, DisplayName: "Bob", JoinedAt: now, LastActiveAt: now}
		s.Numbers["+15550010001"] = domain.NumberRecord{Owner: 100, AssignedAt: now}
		s.Enqueue(200)
		return nil
	})
	require.NoError(t, err)

	// fresh instance over the same file
	reloaded := NewFileStore(fs.path)
	err = reloaded.View(ctx, func(s *State) error {
		require.Len(t, s.Users, 2)
		alice := s.Users[100]
		require.NotNil(t, alice.Credential)
		assert.Equal(t, "Alice", alice.DisplayName)
		assert.True(t, alice.Credential.UpdatedAt.Equal(now))
		assert.Equal(t, []string{"+15550010001"}, alice.Numbers)
		assert.Equal(t, int64(100), s.Numbers["+15550010001"].Owner)
		assert.Equal(t, []int64{200}, s.PendingApprovals)
		return nil
	})
	require.NoError(t, err)
}

func TestFileStoreUndecodableStartsEmpty(t *testing.T) {
	fs, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	err := fs.View(context.Background(), func(s *State) error {
		assert.Empty(t, s.Users)
		return nil
	})
	require.NoError(t, err)
}

func TestFileStoreCorruptStateHaltsMutation(t *testing.T) {
	fs, path := newTestStore(t)
	// number indexed to a user that does not exist
	corrupt := `{"users":{},"numbers":{"+15550000001":{"owner":42,"assigned_at":"2026-03-01T00:00:00Z"}},"pending_approvals":[]}`
	require.NoError(t, os.WriteFile(path, []byte(corrupt), 0o644))

	err := fs.Update(context.Background(), func(s *State) error {
		t.Fatal("mutation must not run on corrupt state")
		return nil
	})
	require.ErrorIs(t, err, domain.ErrCorruptState)

	// still corrupt on the next attempt, not silently repaired
	err = fs.View(context.Background(), func(s *State) error { return nil })
	require.ErrorIs(t, err, domain.ErrCorruptState)
}

func TestValidateRejectsDivergentOwnership(t *testing.T) {
	now := time.Now().UTC()
	s := NewState()
	s.Users[1] = &domain.User{ID: 1, Approved: true, Numbers: []string{"+15550000001"}, JoinedAt: now, LastActiveAt: now}
	s.Users[2] = &domain.User{ID: 2, Approved: true, JoinedAt: now, LastActiveAt: now}
	s.Numbers["+15550000001"] = domain.NumberRecord{Owner: 2, AssignedAt: now}

	require.ErrorIs(t, Validate(s), domain.ErrCorruptState)
}

func TestValidateRejectsDuplicatePending(t *testing.T) {
	now := time.Now().UTC()
	s := NewState()
	s.Users[7] = &domain.User{ID: 7, JoinedAt: now, LastActiveAt: now}
	s.PendingApprovals = []int64{7, 7}

	require.ErrorIs(t, Validate(s), domain.ErrCorruptState)
}

func TestFileStoreFailedMutationLeavesDiskUntouched(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, fs.Update(ctx, func(s *State) error {
		s.Users[1] = &domain.User{ID: 1, Approved: true, JoinedAt: now, LastActiveAt: now}
		return nil
	}))

	boom := errors.New("boom")
	err := fs.Update(ctx, func(s *State) error {
		delete(s.Users, 1)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, fs.View(ctx, func(s *State) error {
		assert.Contains(t, s.Users, int64(1))
		return nil
	}))
}

func TestFileStoreSerializesConcurrentUpdates(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, fs.Update(ctx, func(s *State) error {
		s.Users[1] = &domain.User{ID: 1, Approved: true, JoinedAt: now, LastActiveAt: now}
		return nil
	}))

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_ = fs.Update(ctx, func(s *State) error {
				number := string(rune('A'+i)) + "-number"
				s.Users[1].AddNumber(number)
				s.Numbers[number] = domain.NumberRecord{Owner: 1, AssignedAt: now}
				return nil
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, fs.View(ctx, func(s *State) error {
		assert.Len(t, s.Users[1].Numbers, workers)
		assert.Len(t, s.Numbers, workers)
		return nil
	}))
}
