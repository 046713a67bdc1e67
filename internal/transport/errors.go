package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-smtp"
)

// DispatchError is returned by the Dispatcher once every attempt has been
// exhausted on a retryable failure.
type DispatchError struct {
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// connectionErrorPatterns mark failures of the session itself rather than of
// the message, so the pooled connection must not be reused.
var connectionErrorPatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"use of closed network connection",
	"i/o timeout",
	"unexpected eof",
	"eof",
}

// retryablePatterns cover transient provider failures worth another attempt:
// concurrent-connection caps, greylisting, and plain network flakiness.
var retryablePatterns = []string{
	"too many connections",
	"too many concurrent",
	"connection limit",
	"try again later",
	"temporarily",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"timeout",
	"unexpected eof",
	"eof",
}

// IsRetryable classifies an error as a transient transport failure. SMTP 4xx
// replies are temporary by definition; 5xx replies (bad recipient, auth
// failure, content rejection) are terminal and propagate without retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Temporary()
	}

	return containsAny(err.Error(), retryablePatterns)
}

// isConnectionError reports whether a send failure poisoned the session
// itself, as opposed to the server rejecting this particular message.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		// 421: the server is closing the transmission channel.
		return smtpErr.Code == 421
	}

	return containsAny(err.Error(), connectionErrorPatterns)
}

func containsAny(s string, patterns []string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
