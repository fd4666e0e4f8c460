package mail

import (
	"context"
	"io"
)

// Dialer opens authenticated sessions to a mail relay.
// Host, port, security mode and credentials are fixed by the implementation's config.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is a single connection to a mail relay.
//
// Send may only be called between a successful Dial and Close. After a
// transport-level disconnect the session is unusable and must be replaced
// with a fresh one from the Dialer.
type Session interface {
	Send(ctx context.Context, msg *Message) error
	io.Closer
}
