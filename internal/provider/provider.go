// Package provider holds the telephony provider boundary: credential
// validation, number search/purchase/release and inbox retrieval.
package provider

import (
	"context"
	"time"

	"numbot/internal/domain"
)

// Message is one inbound SMS for a provisioned number.
type Message struct {
	From   string
	SentAt time.Time
	Body   string
}

// Client is the provider capability consumed by the lifecycle manager.
// Calls are made with the acting user's own credential; the process
// holds no provider account of its own.
type Client interface {
	// Validate performs a live round trip to confirm the credential is
	// accepted. Transport errors and non-2xx responses report false;
	// they are expected outcomes of untrusted input, never fatal.
	Validate(ctx context.Context, cred domain.Credential) bool

	// AcquireNumber purchases a number scoped to the country selector
	// and returns it in E.164 form.
	AcquireNumber(ctx context.Context, cred domain.Credential, selector string) (string, error)

	// ReleaseNumber gives the number back to the provider.
	ReleaseNumber(ctx context.Context, cred domain.Credential, number string) error

	// FetchMessages returns up to limit most recent inbound messages
	// for the number.
	FetchMessages(ctx context.Context, cred domain.Credential, number string, limit int) ([]Message, error)

	// Balance reports the account balance as a display string.
	Balance(ctx context.Context, cred domain.Credential) (string, error)
}
