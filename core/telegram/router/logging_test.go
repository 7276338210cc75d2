package router

import (
	"errors"
	"fmt"
	"testing"
)

type codedError struct{ code string }

func (e *codedError) Error() string { return "provider said no" }
func (e *codedError) Code() string  { return e.code }

func TestDeriveErrorCode(t *testing.T) {
	coded := &codedError{code: "provider timeout"}

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", coded, "PROVIDER_TIMEOUT"},
		{"wrapped once", fmt.Errorf("fetch inbox: %w", coded), "PROVIDER_TIMEOUT"},
		{"wrapped twice", fmt.Errorf("handle: %w", fmt.Errorf("fetch inbox: %w", coded)), "PROVIDER_TIMEOUT"},
		{"empty code falls back to type", &codedError{}, "CODEDERROR"},
		{"plain error falls back to type", errors.New("boom"), "ERRORSTRING"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveErrorCode(tc.err); got != tc.want {
				t.Fatalf("deriveErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
