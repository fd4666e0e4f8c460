package rows

import (
	"fmt"
)

// FormatError reports tabular input that cannot be turned into rows.
type FormatError struct {
	Line   int // 1-based, zero when unknown
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "malformed csv"
	if e.Line > 0 {
		msg = fmt.Sprintf("%s at line %d", msg, e.Line)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
