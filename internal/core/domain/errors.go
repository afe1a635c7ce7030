package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed network operation.
type ErrorKind string

const (
	ErrorKindTransient   ErrorKind = "transient"
	ErrorKindRateLimited ErrorKind = "rate_limited"
	ErrorKindAuthExpired ErrorKind = "auth_expired"
	ErrorKindFatal       ErrorKind = "fatal"
	ErrorKindUnknown     ErrorKind = "unknown"
)

var (
	// ErrAuthExchange is returned when the authorization code is invalid,
	// expired, or the state nonce mismatches. The user must restart the flow.
	ErrAuthExchange = errors.New("authorization code exchange failed")

	// ErrAuthExpired is returned when the refresh token is invalid or revoked.
	// Unrecoverable without a full re-authentication.
	ErrAuthExpired = errors.New("credentials expired and refresh failed")
)

// RequestError carries the HTTP context of a failed API call so the
// classifier can map it without string matching.
type RequestError struct {
	Operation  string
	Resource   string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ErrorRecord accumulates failure context for one logical operation. It is
// reset when the operation succeeds or is abandoned.
type ErrorRecord struct {
	Kind        ErrorKind
	HTTPStatus  int
	RetryCount  int
	FirstSeenAt time.Time
	Operation   string
	Resource    string
	History     []string

	// RefreshAttempted is set once a credential refresh has been tried for
	// this operation, so an auth failure is not refreshed twice.
	RefreshAttempted bool
}

// Observe folds a new classified failure into the record.
func (r *ErrorRecord) Observe(kind ErrorKind, status int, err error) {
	if r.FirstSeenAt.IsZero() {
		r.FirstSeenAt = time.Now()
	}
	r.Kind = kind
	r.HTTPStatus = status
	if err != nil {
		r.History = append(r.History, err.Error())
		if len(r.History) > 10 {
			r.History = r.History[len(r.History)-10:]
		}
	}
}
