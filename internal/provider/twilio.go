package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"numbot/core/logger"
	"numbot/internal/domain"
)

const (
	apiVersion       = "2010-04-01"
	defaultInboxSize = 20
)

// dialing prefixes mapped to ISO country codes for number search.
// Selectors not listed here are passed through as ISO codes directly.
var prefixCountries = map[string]string{
	"+1":   "US",
	"+7":   "RU",
	"+33":  "FR",
	"+44":  "GB",
	"+49":  "DE",
	"+380": "UA",
}

// Twilio is a REST client for the provider API. Every call is bounded
// by the configured timeout and authenticated with the credential of
// the acting user.
type Twilio struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

// NewTwilio builds a client for the given API base URL.
func NewTwilio(baseURL string, timeout time.Duration) *Twilio {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := logger.PROV
	if log == nil {
		log = slog.Default().With("component", "provider")
	}
	return &Twilio{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
	}
}

type accountPayload struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type availableNumbersPayload struct {
	AvailablePhoneNumbers []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"available_phone_numbers"`
}

type incomingNumberPayload struct {
	SID         string `json:"sid"`
	PhoneNumber string `json:"phone_number"`
}

type incomingNumbersPayload struct {
	IncomingPhoneNumbers []incomingNumberPayload `json:"incoming_phone_numbers"`
}

type messagesPayload struct {
	Messages []struct {
		From     string `json:"from"`
		DateSent string `json:"date_sent"`
		Body     string `json:"body"`
	} `json:"messages"`
}

type balancePayload struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// Validate fetches the account resource with basic auth. Any failure
// means the pair is not usable, whatever the reason.
func (t *Twilio) Validate(ctx context.Context, cred domain.Credential) bool {
	var payload accountPayload
	err := t.call(ctx, cred, http.MethodGet, t.accountURL(cred, ".json"), nil, &payload)
	if err != nil {
		t.log.Info("credential check failed",
			slog.String("event", "provider.validate"),
			slog.String("err", err.Error()),
		)
		return false
	}
	return true
}

// AcquireNumber searches the selector's country for an SMS-capable
// local number and purchases the first hit.
func (t *Twilio) AcquireNumber(ctx context.Context, cred domain.Credential, selector string) (string, error) {
	country := countryForSelector(selector)
	searchURL := t.accountURL(cred, "/AvailablePhoneNumbers/"+country+"/Local.json") +
		"?SmsEnabled=true&PageSize=1"

	var found availableNumbersPayload
	if err := t.call(ctx, cred, http.MethodGet, searchURL, nil, &found); err != nil {
		return "", err
	}
	if len(found.AvailablePhoneNumbers) == 0 {
		return "", fmt.Errorf("%w: no numbers available for %s", domain.ErrProviderUnavailable, selector)
	}
	candidate := found.AvailablePhoneNumbers[0].PhoneNumber

	form := url.Values{"PhoneNumber": {candidate}}
	var bought incomingNumberPayload
	if err := t.call(ctx, cred, http.MethodPost, t.accountURL(cred, "/IncomingPhoneNumbers.json"), form, &bought); err != nil {
		return "", err
	}

	t.log.Info("number purchased",
		slog.String("event", "provider.acquire"),
		slog.String("number", bought.PhoneNumber),
		slog.String("selector", selector),
	)
	return bought.PhoneNumber, nil
}

// ReleaseNumber resolves the number's resource SID and deletes it.
func (t *Twilio) ReleaseNumber(ctx context.Context, cred domain.Credential, number string) error {
	lookupURL := t.accountURL(cred, "/IncomingPhoneNumbers.json") +
		"?PhoneNumber=" + url.QueryEscape(number)

	var listed incomingNumbersPayload
	if err := t.call(ctx, cred, http.MethodGet, lookupURL, nil, &listed); err != nil {
		return err
	}
	if len(listed.IncomingPhoneNumbers) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownNumber, number)
	}

	sid := listed.IncomingPhoneNumbers[0].SID
	if err := t.call(ctx, cred, http.MethodDelete, t.accountURL(cred, "/IncomingPhoneNumbers/"+sid+".json"), nil, nil); err != nil {
		return err
	}

	t.log.Info("number released",
		slog.String("event", "provider.release"),
		slog.String("number", number),
	)
	return nil
}

// FetchMessages returns the most recent inbound messages for the number.
func (t *Twilio) FetchMessages(ctx context.Context, cred domain.Credential, number string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultInboxSize
	}
	listURL := t.accountURL(cred, "/Messages.json") +
		fmt.Sprintf("?To=%s&PageSize=%d", url.QueryEscape(number), limit)

	var payload messagesPayload
	if err := t.call(ctx, cred, http.MethodGet, listURL, nil, &payload); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		sentAt, _ := time.Parse(time.RFC1123Z, m.DateSent)
		out = append(out, Message{From: m.From, SentAt: sentAt, Body: m.Body})
	}
	return out, nil
}

// Balance reports the remaining account balance.
func (t *Twilio) Balance(ctx context.Context, cred domain.Credential) (string, error) {
	var payload balancePayload
	if err := t.call(ctx, cred, http.MethodGet, t.accountURL(cred, "/Balance.json"), nil, &payload); err != nil {
		return "", err
	}
	return payload.Balance + " " + payload.Currency, nil
}

func (t *Twilio) accountURL(cred domain.Credential, suffix string) string {
	return t.baseURL + "/" + apiVersion + "/Accounts/" + cred.AccountSID + suffix
}

func (t *Twilio) call(ctx context.Context, cred domain.Credential, method, rawURL string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrProviderUnavailable, err)
	}
	req.SetBasicAuth(cred.AccountSID, cred.AuthToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return translateTransport(err)
	}
	defer resp.Body.Close()

	t.log.Debug("provider call",
		slog.String("event", "provider.call"),
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}
	return nil
}

func translateTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

func countryForSelector(selector string) string {
	selector = strings.TrimSpace(selector)
	if country, ok := prefixCountries[selector]; ok {
		return country
	}
	return strings.ToUpper(selector)
}
