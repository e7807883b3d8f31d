package roles

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, 5xx, network.
	ErrTransient = errors.New("transient role api failure")
	// ErrPermanent marks failures that will not succeed on retry.
	ErrPermanent = errors.New("permanent role api failure")

	ErrNotLinked         = errors.New("member has not linked a platform account")
	ErrMemberNotInServer = errors.New("member is not in the server")
	ErrMissingPermission = errors.New("bot lacks permission to manage the role")
	ErrUnknownRole       = errors.New("role does not exist on the server")
)

// Error is a failure returned by a role client, classified for retry.
type Error struct {
	kind       error
	Code       string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.kind.Error()
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.Err}
}

func Transient(status int, retryAfter time.Duration, err error) *Error {
	return &Error{kind: ErrTransient, Status: status, RetryAfter: retryAfter, Err: err}
}

func Permanent(code string, status int, err error) *Error {
	return &Error{kind: ErrPermanent, Code: code, Status: status, Err: err}
}

// IsPermanent reports whether err should not be retried. Errors that are
// neither classified transient nor permanent are treated as transient.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func retryAfterOf(err error) time.Duration {
	var re *Error
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
