package numbers

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adminsvc "numbot/internal/admin"
	"numbot/internal/auth"
	"numbot/internal/domain"
	"numbot/internal/provider"
	"numbot/internal/store"
)

const adminID int64 = 1

var (
	goodSID   = "AC" + strings.Repeat("a", 32)
	goodToken = strings.Repeat("b", 32)
)

type fixture struct {
	store   store.Store
	fake    *provider.Fake
	gate    *auth.Gate
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	fake := provider.NewFake()
	fake.Allow(goodSID, goodToken)
	gate := auth.NewGate(st, fake, adminID)
	return &fixture{
		store:   st,
		fake:    fake,
		gate:    gate,
		manager: NewManager(st, fake, gate),
	}
}

// boundUser registers, approves and binds a credential for id.
func (f *fixture) boundUser(t *testing.T, id int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.gate.EnsureUser(ctx, id, "user")
	require.NoError(t, err)
	require.NoError(t, f.store.Update(ctx, func(s *store.State) error {
		s.Users[id].Approved = true
		s.Dequeue(id)
		return nil
	}))
	require.NoError(t, f.gate.BindCredential(ctx, id, goodSID, goodToken))
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, "+1"))

	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Equal(t, []string{number}, s.Users[100].Numbers)
		assert.Equal(t, int64(100), s.Numbers[number].Owner)
		return nil
	}))

	require.NoError(t, f.manager.Release(ctx, 100, number))
	assert.Equal(t, []string{number}, f.fake.Released)

	// symmetric: pre-acquire state restored
	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Empty(t, s.Users[100].Numbers)
		assert.Empty(t, s.Numbers)
		return nil
	}))
}

func TestAcquireRequiresCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.gate.EnsureUser(ctx, 100, "user")
	require.NoError(t, err)
	require.NoError(t, f.store.Update(ctx, func(s *store.State) error {
		s.Users[100].Approved = true
		s.Dequeue(100)
		return nil
	}))

	_, err = f.manager.Acquire(ctx, 100, "+1")
	require.ErrorIs(t, err, domain.ErrCredentialRequired)

	// no mutation happened
	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Empty(t, s.Numbers)
		assert.Empty(t, s.Users[100].Numbers)
		return nil
	}))
}

func TestNumberActionsDeniedAfterApprovalRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)

	// admin blocks the user mid-session, e.g. while a buy dialog is open
	require.NoError(t, f.store.Update(ctx, func(s *store.State) error {
		s.Users[100].Approved = false
		s.Enqueue(100)
		return nil
	}))

	_, err = f.manager.Acquire(ctx, 100, "+1")
	require.ErrorIs(t, err, domain.ErrPendingApproval)

	_, err = f.manager.Inbox(ctx, 100, number)
	require.ErrorIs(t, err, domain.ErrPendingApproval)

	err = f.manager.Release(ctx, 100, number)
	require.ErrorIs(t, err, domain.ErrPendingApproval)
	assert.Empty(t, f.fake.Released, "provider must not act for an unapproved user")

	// nothing mutated: the number is still owned and indexed
	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Equal(t, []string{number}, s.Users[100].Numbers)
		assert.Equal(t, int64(100), s.Numbers[number].Owner)
		return nil
	}))
}

func TestAcquireDuplicateConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)

	first, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)

	// force the provider to hand out the same number again
	dup := &duplicatingClient{Fake: f.fake, number: first}
	mgr := NewManager(f.store, dup, f.gate)

	_, err = mgr.Acquire(ctx, 100, "+1")
	require.ErrorIs(t, err, domain.ErrDuplicateNumber)

	// index untouched, still exactly one owner
	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Equal(t, []string{first}, s.Users[100].Numbers)
		assert.Len(t, s.Numbers, 1)
		return nil
	}))
}

type duplicatingClient struct {
	*provider.Fake
	number string
}

func (d *duplicatingClient) AcquireNumber(context.Context, domain.Credential, string) (string, error) {
	return d.number, nil
}

func TestReleaseRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)
	f.boundUser(t, 200)

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)

	err = f.manager.Release(ctx, 200, number)
	require.ErrorIs(t, err, domain.ErrNotOwned)
	assert.Empty(t, f.fake.Released, "provider release must not run for a non-owner")

	err = f.manager.Release(ctx, 200, "+19990000000")
	require.ErrorIs(t, err, domain.ErrUnknownNumber)
}

func TestReleaseRaceFailsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)
	require.NoError(t, f.manager.Release(ctx, 100, number))

	// confirm arriving after the number is already gone
	err = f.manager.Release(ctx, 100, number)
	require.ErrorIs(t, err, domain.ErrUnknownNumber)
}

func TestInboxOwnershipAndCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)
	f.boundUser(t, 200)

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)
	f.fake.Inboxes[number] = []provider.Message{
		{From: "+15005550006", SentAt: time.Now(), Body: "Your code is 493021"},
		{From: "+15005550006", SentAt: time.Now(), Body: "Your code is 493021"},
		{From: "+15005550007", SentAt: time.Now(), Body: "PIN 778899 expires soon"},
	}

	codes, err := f.manager.Inbox(ctx, 100, number)
	require.NoError(t, err)
	assert.Equal(t, []string{"493021", "778899"}, codes)

	_, err = f.manager.Inbox(ctx, 200, number)
	require.ErrorIs(t, err, domain.ErrNotOwned)
}

func TestInboxNoCodesIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.boundUser(t, 100)

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)

	codes, err := f.manager.Inbox(ctx, 100, number)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

// TestProvisioningScenario walks the full life of a non-admin user:
// first contact, approval, credential binding, acquire, release.
func TestProvisioningScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adm := adminsvc.NewService(f.store, adminID, nil)

	created, err := f.gate.EnsureUser(ctx, 100, "Alice")
	require.NoError(t, err)
	assert.True(t, created)

	d, err := f.gate.Authorize(ctx, 100, auth.Action{Name: "buy", CredentialGated: true})
	require.NoError(t, err)
	assert.Equal(t, auth.PendingApproval, d)

	require.NoError(t, adm.Approve(ctx, 100))
	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Empty(t, s.PendingApprovals)
		assert.True(t, s.Users[100].Approved)
		return nil
	}))

	require.NoError(t, f.gate.BindCredential(ctx, 100, goodSID, goodToken))

	number, err := f.manager.Acquire(ctx, 100, "+1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, "+1"))

	require.NoError(t, f.manager.Release(ctx, 100, number))
	require.NoError(t, f.store.View(ctx, func(s *store.State) error {
		assert.Empty(t, s.Users[100].Numbers)
		assert.Empty(t, s.Numbers)
		return nil
	}))
}
