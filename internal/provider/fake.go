package provider

import (
	"context"
	"fmt"
	"sync"

	"numbot/internal/domain"
)

// Fake is an in-memory Client for tests. It hands out deterministic
// numbers per selector and records inbound messages per number.
type Fake struct {
	mu       sync.Mutex
	seq      int
	Valid    map[string]string // account SID -> expected auth token
	Inboxes  map[string][]Message
	Released []string

	// ValidateCalls counts live credential round trips.
	ValidateCalls int

	AcquireErr error
	ReleaseErr error
}

// NewFake returns an empty fake accepting no credentials.
func NewFake() *Fake {
	return &Fake{
		Valid:   make(map[string]string),
		Inboxes: make(map[string][]Message),
	}
}

// Allow registers a credential pair the fake will accept.
func (f *Fake) Allow(sid, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Valid[sid] = token
}

func (f *Fake) Validate(_ context.Context, cred domain.Credential) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValidateCalls++
	token, ok := f.Valid[cred.AccountSID]
	return ok && token == cred.AuthToken
}

func (f *Fake) AcquireNumber(_ context.Context, _ domain.Credential, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AcquireErr != nil {
		return "", f.AcquireErr
	}
	f.seq++
	prefix := selector
	if _, ok := prefixCountries[prefix]; !ok {
		prefix = "+1"
	}
	return fmt.Sprintf("%s55501%04d", prefix, f.seq), nil
}

func (f *Fake) ReleaseNumber(_ context.Context, _ domain.Credential, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReleaseErr != nil {
		return f.ReleaseErr
	}
	f.Released = append(f.Released, number)
	return nil
}

func (f *Fake) FetchMessages(_ context.Context, _ domain.Credential, number string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.Inboxes[number]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *Fake) Balance(_ context.Context, _ domain.Credential) (string, error) {
	return "15.00 USD", nil
}
