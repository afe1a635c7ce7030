// Package retry holds the error classifier and the retry policy that turn
// raw request failures into deterministic recovery decisions.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// Classify maps an error to its ErrorKind. It is a pure function of the
// error value: same error, same kind. Classification inspects structured
// error types, never message text.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindUnknown
	}

	// Refresh-token death is terminal wherever it surfaces.
	if errors.Is(err, domain.ErrAuthExpired) {
		return domain.ErrorKindAuthExpired
	}
	if errors.Is(err, domain.ErrAuthExchange) {
		return domain.ErrorKindFatal
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrorKindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTransient
	}

	var reqErr *domain.RequestError
	if errors.As(err, &reqErr) && reqErr.Status != 0 {
		switch {
		case reqErr.Status == http.StatusTooManyRequests:
			return domain.ErrorKindRateLimited
		case reqErr.Status == http.StatusUnauthorized:
			return domain.ErrorKindAuthExpired
		case reqErr.Status >= 500:
			return domain.ErrorKindTransient
		case reqErr.Status >= 400:
			return domain.ErrorKindFatal
		}
	}

	if isNetworkTransient(err) {
		return domain.ErrorKindTransient
	}
	return domain.ErrorKindUnknown
}

// isNetworkTransient reports whether err is a connectivity-level failure
// worth retrying: timeouts, resets, refused or dropped connections.
func isNetworkTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// HTTPStatus extracts the HTTP status carried by err, or 0.
func HTTPStatus(err error) int {
	var reqErr *domain.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

// RetryAfterHint extracts the server-provided retry delay carried by err,
// or 0 when the server gave none.
func RetryAfterHint(err error) time.Duration {
	var reqErr *domain.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.RetryAfter
	}
	return 0
}
