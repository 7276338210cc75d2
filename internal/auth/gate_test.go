package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numbot/internal/domain"
	"numbot/internal/provider"
	"numbot/internal/store"
)

const adminID int64 = 1

var (
	goodSID   = "AC" + strings.Repeat("a", 32)
	goodToken = strings.Repeat("b", 32)
)

func newTestGate(t *testing.T) (*Gate, *provider.Fake, store.Store) {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	fake := provider.NewFake()
	fake.Allow(goodSID, goodToken)
	return NewGate(st, fake, adminID), fake, st
}

func setApproved(t *testing.T, st store.Store, id int64, approved bool) {
	t.Helper()
	require.NoError(t, st.Update(context.Background(), func(s *store.State) error {
		s.Users[id].Approved = approved
		if approved {
			s.Dequeue(id)
		} else {
			s.Enqueue(id)
		}
		return nil
	}))
}

func TestEnsureUserFirstContact(t *testing.T) {
	gate, _, st := newTestGate(t)
	ctx := context.Background()

	created, err := gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, st.View(ctx, func(s *store.State) error {
		u := s.Users[100]
		require.NotNil(t, u)
		assert.False(t, u.Approved)
		assert.False(t, u.JoinedAt.IsZero())
		// enqueued exactly once
		assert.Equal(t, []int64{100}, s.PendingApprovals)
		return nil
	}))
}

func TestEnsureUserAdminPreApproved(t *testing.T) {
	gate, _, st := newTestGate(t)
	ctx := context.Background()

	_, err := gate.EnsureUser(ctx, adminID, "Root")
	require.NoError(t, err)

	require.NoError(t, st.View(ctx, func(s *store.State) error {
		assert.True(t, s.Users[adminID].Approved)
		assert.Empty(t, s.PendingApprovals)
		return nil
	}))
}

func TestAuthorizeRuleOrder(t *testing.T) {
	gate, _, st := newTestGate(t)
	ctx := context.Background()

	_, err := gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)

	// admin-gated beats pending
	d, err := gate.Authorize(ctx, 100, Action{Name: "users", AdminOnly: true})
	require.NoError(t, err)
	assert.Equal(t, AdminOnly, d)

	d, err = gate.Authorize(ctx, 100, Action{Name: "buy", CredentialGated: true})
	require.NoError(t, err)
	assert.Equal(t, PendingApproval, d)

	require.NoError(t, st.Update(ctx, func(s *store.State) error {
		s.Users[100].Approved = true
		s.Dequeue(100)
		return nil
	}))

	d, err = gate.Authorize(ctx, 100, Action{Name: "buy", CredentialGated: true})
	require.NoError(t, err)
	assert.Equal(t, CredentialRequired, d)

	d, err = gate.Authorize(ctx, 100, Action{Name: "numbers"})
	require.NoError(t, err)
	assert.Equal(t, Allowed, d)
}

func TestAuthorizeUnknownUser(t *testing.T) {
	gate, _, _ := newTestGate(t)

	_, err := gate.Authorize(context.Background(), 555, Action{Name: "start"})
	require.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestBindCredentialFormatCheckSkipsNetwork(t *testing.T) {
	gate, fake, _ := newTestGate(t)
	ctx := context.Background()
	_, err := gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)

	cases := []struct{ sid, token string }{
		{"XX" + strings.Repeat("a", 32), goodToken}, // wrong prefix
		{"AC" + strings.Repeat("a", 10), goodToken}, // short sid
		{goodSID, "short"},                          // short token
		{"", ""},
	}
	for _, tc := range cases {
		err := gate.BindCredential(ctx, 100, tc.sid, tc.token)
		require.ErrorIs(t, err, domain.ErrMalformedCredential)
	}
	assert.Zero(t, fake.ValidateCalls, "malformed input must never reach the provider")
}

func TestBindCredentialLiveCheck(t *testing.T) {
	gate, fake, st := newTestGate(t)
	ctx := context.Background()
	_, err := gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)
	setApproved(t, st, 100, true)

	err = gate.BindCredential(ctx, 100, "AC"+strings.Repeat("c", 32), goodToken)
	require.ErrorIs(t, err, domain.ErrCredentialRejected)
	assert.Equal(t, 1, fake.ValidateCalls)

	require.NoError(t, gate.BindCredential(ctx, 100, goodSID, goodToken))
	require.NoError(t, st.View(ctx, func(s *store.State) error {
		cred := s.Users[100].Credential
		require.NotNil(t, cred)
		assert.Equal(t, goodSID, cred.AccountSID)
		assert.False(t, cred.UpdatedAt.IsZero())
		return nil
	}))
}

func TestBindCredentialRequiresApproval(t *testing.T) {
	gate, fake, st := newTestGate(t)
	ctx := context.Background()
	_, err := gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)

	// never approved: a well-formed pair must not trigger a live check
	err = gate.BindCredential(ctx, 100, goodSID, goodToken)
	require.ErrorIs(t, err, domain.ErrPendingApproval)
	assert.Zero(t, fake.ValidateCalls, "unapproved user must not spend a provider round trip")

	// approved, bound, then revoked while the login dialog is still open
	setApproved(t, st, 100, true)
	require.NoError(t, gate.BindCredential(ctx, 100, goodSID, goodToken))
	setApproved(t, st, 100, false)

	err = gate.BindCredential(ctx, 100, goodSID, goodToken)
	require.ErrorIs(t, err, domain.ErrPendingApproval)

	_, err = gate.Credential(ctx, 100)
	require.ErrorIs(t, err, domain.ErrPendingApproval)

	require.ErrorIs(t, gate.UnbindCredential(ctx, 100), domain.ErrPendingApproval)
}

func TestUnbindCredential(t *testing.T) {
	gate, _, st := newTestGate(t)
	ctx := context.Background()
	_, err := gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)
	setApproved(t, st, 100, true)

	require.ErrorIs(t, gate.UnbindCredential(ctx, 100), domain.ErrCredentialRequired)

	require.NoError(t, gate.BindCredential(ctx, 100, goodSID, goodToken))
	require.NoError(t, gate.UnbindCredential(ctx, 100))
	require.NoError(t, st.View(ctx, func(s *store.State) error {
		assert.Nil(t, s.Users[100].Credential)
		return nil
	}))
}
