package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/emersion/go-smtp"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"smtp 421", &smtp.SMTPError{Code: 421, Message: "closing channel"}, true},
		{"smtp 451", &smtp.SMTPError{Code: 451, Message: "local error"}, true},
		{"smtp 550", &smtp.SMTPError{Code: 550, Message: "no such user"}, false},
		{"smtp 535", &smtp.SMTPError{Code: 535, Message: "authentication failed"}, false},
		{"wrapped smtp 452", fmt.Errorf("failed to send: %w", &smtp.SMTPError{Code: 452, Message: "too many recipients"}), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"too many connections", errors.New("too many concurrent SMTP connections"), true},
		{"timeout", errors.New("read tcp: i/o timeout"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"content rejection", errors.New("message rejected as spam"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"smtp 421", &smtp.SMTPError{Code: 421, Message: "closing channel"}, true},
		{"smtp 451", &smtp.SMTPError{Code: 451, Message: "local error"}, false},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed connection", errors.New("use of closed network connection"), true},
		{"recipient rejected", errors.New("550 no such user"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDispatchErrorUnwrap(t *testing.T) {
	inner := errors.New("i/o timeout")
	err := &DispatchError{Attempts: 3, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Expected DispatchError to unwrap to the inner error")
	}
	if err.Error() != "dispatch failed after 3 attempts: i/o timeout" {
		t.Errorf("Unexpected error string: %s", err.Error())
	}
}
