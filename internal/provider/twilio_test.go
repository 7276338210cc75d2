package provider_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numbot/internal/domain"
	"numbot/internal/provider"
)

var testCred = domain.Credential{
	AccountSID: "ACaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	AuthToken:  "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
}

func wantAuth(t *testing.T, r *http.Request) {
	t.Helper()
	raw := base64.StdEncoding.EncodeToString([]byte(testCred.AccountSID + ":" + testCred.AuthToken))
	assert.Equal(t, "Basic "+raw, r.Header.Get("Authorization"))
}

func TestValidate(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wantAuth(t, r)
			assert.Equal(t, "/2010-04-01/Accounts/"+testCred.AccountSID+".json", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]string{"sid": testCred.AccountSID, "status": "active"})
		}))
		defer srv.Close()

		tw := provider.NewTwilio(srv.URL, time.Second)
		assert.True(t, tw.Validate(context.Background(), testCred))
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		tw := provider.NewTwilio(srv.URL, time.Second)
		assert.False(t, tw.Validate(context.Background(), testCred))
	})
}

func TestAcquireNumber(t *testing.T) {
	var purchased string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantAuth(t, r)
		switch {
		case r.Method == http.MethodGet:
			assert.Contains(t, r.URL.Path, "/AvailablePhoneNumbers/US/Local.json")
			assert.Equal(t, "true", r.URL.Query().Get("SmsEnabled"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"available_phone_numbers": []map[string]string{{"phone_number": "+15550001234"}},
			})
		case r.Method == http.MethodPost:
			require.NoError(t, r.ParseForm())
			purchased = r.PostForm.Get("PhoneNumber")
			_ = json.NewEncoder(w).Encode(map[string]string{"sid": "PN123", "phone_number": purchased})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	number, err := tw.AcquireNumber(context.Background(), testCred, "+1")
	require.NoError(t, err)
	assert.Equal(t, "+15550001234", number)
	assert.Equal(t, "+15550001234", purchased)
}

func TestAcquireNumberNoneAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"available_phone_numbers": []any{}})
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	_, err := tw.AcquireNumber(context.Background(), testCred, "GB")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestReleaseNumber(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "+15550001234", r.URL.Query().Get("PhoneNumber"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"incoming_phone_numbers": []map[string]string{{"sid": "PN123", "phone_number": "+15550001234"}},
			})
		case http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	require.NoError(t, tw.ReleaseNumber(context.Background(), testCred, "+15550001234"))
	assert.Contains(t, deleted, "/IncomingPhoneNumbers/PN123.json")
}

func TestReleaseNumberNotOnAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"incoming_phone_numbers": []any{}})
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	err := tw.ReleaseNumber(context.Background(), testCred, "+15550001234")
	assert.ErrorIs(t, err, domain.ErrUnknownNumber)
}

func TestFetchMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "+15550001234", r.URL.Query().Get("To"))
		assert.Equal(t, "5", r.URL.Query().Get("PageSize"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{
				{"from": "+15550009999", "date_sent": "Mon, 16 Aug 2021 14:22:01 +0000", "body": "Your code is 123456"},
				{"from": "+15550008888", "date_sent": "not a date", "body": "hello"},
			},
		})
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	msgs, err := tw.FetchMessages(context.Background(), testCred, "+15550001234", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "+15550009999", msgs[0].From)
	assert.Equal(t, "Your code is 123456", msgs[0].Body)
	assert.Equal(t, 2021, msgs[0].SentAt.Year())
	assert.True(t, msgs[1].SentAt.IsZero())
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/Balance.json")
		_ = json.NewEncoder(w).Encode(map[string]string{"balance": "14.37", "currency": "USD"})
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	balance, err := tw.Balance(context.Background(), testCred)
	require.NoError(t, err)
	assert.Equal(t, "14.37 USD", balance)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tw := provider.NewTwilio(srv.URL, time.Second)
	_, err := tw.Balance(context.Background(), testCred)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestSlowServerIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tw := provider.NewTwilio(srv.URL, 50*time.Millisecond)
	_, err := tw.Balance(context.Background(), testCred)
	assert.ErrorIs(t, err, domain.ErrProviderTimeout)
}
