package admin_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numbot/internal/admin"
	"numbot/internal/domain"
	"numbot/internal/store"
)

const adminID int64 = 99

func newStore(t *testing.T) store.Store {
	t.Helper()
	return store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
}

func seedUser(t *testing.T, st store.Store, id int64, approved bool) {
	t.Helper()
	err := st.Update(context.Background(), func(s *store.State) error {
		s.Users[id] = &domain.User{ID: id, DisplayName: "user", Approved: approved}
		if !approved {
			s.Enqueue(id)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestApproveDequeuesAndNotifiesOnce(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, 7, false)

	var notified []int64
	svc := admin.NewService(st, adminID, func(_ context.Context, userID int64, text string) error {
		notified = append(notified, userID)
		assert.Contains(t, text, "approved")
		return nil
	})

	ctx := context.Background()
	require.NoError(t, svc.Approve(ctx, 7))

	err := st.View(ctx, func(s *store.State) error {
		assert.True(t, s.Users[7].Approved)
		assert.Empty(t, s.PendingApprovals)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{7}, notified)

	// second approve is a no-op: no second notification
	require.NoError(t, svc.Approve(ctx, 7))
	assert.Equal(t, []int64{7}, notified)
}

func TestApproveUnknownUser(t *testing.T) {
	svc := admin.NewService(newStore(t), adminID, nil)
	err := svc.Approve(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestApproveNotifyFailureIsNotAnError(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, 7, false)

	svc := admin.NewService(st, adminID, func(context.Context, int64, string) error {
		return errors.New("user blocked the bot")
	})

	ctx := context.Background()
	require.NoError(t, svc.Approve(ctx, 7))

	err := st.View(ctx, func(s *store.State) error {
		assert.True(t, s.Users[7].Approved)
		return nil
	})
	require.NoError(t, err)
}

func TestBlockReturnsUserToPending(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, 7, true)
	svc := admin.NewService(st, adminID, nil)

	ctx := context.Background()
	require.NoError(t, svc.Block(ctx, 7))

	err := st.View(ctx, func(s *store.State) error {
		assert.False(t, s.Users[7].Approved)
		assert.Equal(t, []int64{7}, s.PendingApprovals)
		return nil
	})
	require.NoError(t, err)

	// blocking twice does not duplicate the queue entry
	require.NoError(t, svc.Block(ctx, 7))
	err = st.View(ctx, func(s *store.State) error {
		assert.Equal(t, []int64{7}, s.PendingApprovals)
		return nil
	})
	require.NoError(t, err)
}

func TestBlockAdminRefused(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, adminID, true)
	svc := admin.NewService(st, adminID, nil)

	err := svc.Block(context.Background(), adminID)
	assert.ErrorIs(t, err, domain.ErrAdminOnly)
}

func TestBlockUnknownUser(t *testing.T) {
	svc := admin.NewService(newStore(t), adminID, nil)
	err := svc.Block(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestListUsersSortedSnapshot(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, 30, true)
	seedUser(t, st, 10, false)
	seedUser(t, st, 20, true)
	ctx := context.Background()
	err := st.Update(ctx, func(s *store.State) error {
		s.Users[20].Credential = &domain.Credential{
			AccountSID: "AC00000000000000000000000000000000",
			AuthToken:  "00000000000000000000000000000000",
		}
		s.Users[20].AddNumber("+15550001111")
		s.Numbers["+15550001111"] = domain.NumberRecord{Owner: 20}
		return nil
	})
	require.NoError(t, err)

	svc := admin.NewService(st, adminID, nil)
	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, int64(10), users[0].ID)
	assert.Equal(t, int64(20), users[1].ID)
	assert.Equal(t, int64(30), users[2].ID)
	assert.True(t, users[1].HasCred)
	assert.Equal(t, 1, users[1].Numbers)
	assert.False(t, users[0].Approved)
}

func TestListPendingArrivalOrder(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, 30, false)
	seedUser(t, st, 10, false)
	svc := admin.NewService(st, adminID, nil)

	pending, err := svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(30), pending[0].ID)
	assert.Equal(t, int64(10), pending[1].ID)
}
