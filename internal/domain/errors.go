package domain

// Error is a sentinel with a stable machine code. The code surfaces as
// err_code in handler summary logs; the text is safe for chat output.
type Error struct {
	code string
	text string
}

// Error returns the human-readable message.
func (e *Error) Error() string { return e.text }

// Code returns the stable machine-readable error code.
func (e *Error) Code() string { return e.code }

// Authorization outcomes. Recovered locally with a specific guidance
// message, never fatal.
var (
	ErrPendingApproval    = &Error{code: "PENDING_APPROVAL", text: "account is awaiting administrator approval"}
	ErrCredentialRequired = &Error{code: "CREDENTIAL_REQUIRED", text: "no provider credential bound to this account"}
	ErrAdminOnly          = &Error{code: "ADMIN_ONLY", text: "administrator privilege required"}
)

// Validation failures. The user is prompted to retry with corrected input.
var (
	ErrMalformedCredential = &Error{code: "MALFORMED_CREDENTIAL", text: "credential does not match the provider format"}
	ErrCredentialRejected  = &Error{code: "CREDENTIAL_REJECTED", text: "provider rejected the credential"}
)

// Integration failures. Transient from the user's point of view; logged
// for operator visibility. Never retried automatically.
var (
	ErrProviderTimeout     = &Error{code: "PROVIDER_TIMEOUT", text: "provider call timed out"}
	ErrProviderUnavailable = &Error{code: "PROVIDER_UNAVAILABLE", text: "provider is unavailable"}
	ErrDuplicateNumber     = &Error{code: "DUPLICATE_NUMBER", text: "number is already tracked for another account"}
)

// Not-found outcomes. No-ops with an explicit message.
var (
	ErrUnknownUser   = &Error{code: "UNKNOWN_USER", text: "user is not registered"}
	ErrUnknownNumber = &Error{code: "UNKNOWN_NUMBER", text: "number is not tracked"}
	ErrNotOwned      = &Error{code: "UNOWNED_NUMBER", text: "number belongs to another account"}
)

// Store failures. Fatal to the triggering operation; the in-memory
// mutation is discarded.
var (
	ErrStoreIO      = &Error{code: "IO_FAILURE", text: "state could not be persisted"}
	ErrCorruptState = &Error{code: "CORRUPT_STATE", text: "persisted state violates ownership invariants"}
)
