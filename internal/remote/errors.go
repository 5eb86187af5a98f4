package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call. Callers branch on these three kinds only.
type Kind int

const (
	// KindValidation covers rejected input and conflicts; the message is
	// safe to show next to the form.
	KindValidation Kind = iota + 1
	// KindAuth covers bad credentials and missing, expired or invalid tokens.
	KindAuth
	// KindNetwork covers transport failures and backend outages.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	}
	return "unknown"
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation = errors.New("validation error")
	ErrAuth       = errors.New("auth error")
	ErrNetwork    = errors.New("network error")
)

// ErrNoToken is wrapped by auth errors raised before any request is sent.
var ErrNoToken = errors.New("no access token")

// Error is returned by every Client operation.
type Error struct {
	// Op is the operation that failed, e.g. "login".
	Op string
	// Kind is the failure class.
	Kind Kind
	// Status is the HTTP status, zero for transport failures.
	Status int
	// Message is the backend's message, verbatim when one was sent.
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrNetwork:
		return e.Kind == KindNetwork
	}
	return false
}

// IsValidation reports whether err is a validation or conflict error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsAuth reports whether err is an authentication error.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// IsNetwork reports whether err is a transport or availability error.
func IsNetwork(err error) bool { return errors.Is(err, ErrNetwork) }

// kindForStatus maps an HTTP error status onto the taxonomy.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindNetwork
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return KindNetwork
	default:
		return KindValidation
	}
}

func networkError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// storeError reports tokens the backend issued but that could not be
// persisted. It is retryable like a transport failure.
func storeError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Message: "could not store session tokens", Err: err}
}
