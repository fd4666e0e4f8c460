package mail

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSessionClosed is returned by Send on a session that was closed or lost its connection.
var ErrSessionClosed = errors.New("session is closed")

// ErrorCode classifies transport failures.
type ErrorCode string

const (
	CodeConnect        ErrorCode = "Connect"
	CodeDisconnected   ErrorCode = "Disconnected"
	CodeSenderRejected ErrorCode = "SenderRejected"
	CodeFatal          ErrorCode = "Fatal"
)

// Error wraps transport errors with their classification.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

// NewError returns nil when err is nil.
func NewError(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mail.%s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("mail.%s: %s", e.Code, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the outermost *Error in the chain, CodeFatal otherwise.
func CodeOf(err error) ErrorCode {
	var mailErr *Error
	if errors.As(err, &mailErr) {
		return mailErr.Code
	}
	return CodeFatal
}

// IsConnect reports whether err is a connection or authentication failure.
func IsConnect(err error) bool {
	return err != nil && CodeOf(err) == CodeConnect
}

// IsDisconnected reports whether the peer closed or reset the connection.
func IsDisconnected(err error) bool {
	return err != nil && CodeOf(err) == CodeDisconnected
}

// IsSenderRejected reports whether the relay refused the envelope sender.
func IsSenderRejected(err error) bool {
	return err != nil && CodeOf(err) == CodeSenderRejected
}

// Outcome is the discriminated result of a single send attempt.
type Outcome int

const (
	Sent Outcome = iota
	Disconnected
	SenderRejected
	Fatal
)

// OutcomeOf maps the error returned by Session.Send to an Outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Sent
	}
	switch CodeOf(err) {
	case CodeDisconnected:
		return Disconnected
	case CodeSenderRejected:
		return SenderRejected
	default:
		return Fatal
	}
}

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Disconnected:
		return "disconnected"
	case SenderRejected:
		return "sender_rejected"
	default:
		return "fatal"
	}
}
