package noop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pure-golang/mailmerge/mail"
)

var (
	_ mail.Dialer  = (*Dialer)(nil)
	_ mail.Session = (*Session)(nil)
)

// Dialer hands out sessions that log messages instead of sending them.
// It backs the dry-run mode.
type Dialer struct {
	logger *slog.Logger

	mx       sync.Mutex
	dials    int
	messages []*mail.Message
}

// NewDialer creates a no-op Dialer. A nil logger means slog.Default().
func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{logger: logger}
}

// Dial never fails.
func (d *Dialer) Dial(ctx context.Context) (mail.Session, error) {
	d.mx.Lock()
	d.dials++
	d.mx.Unlock()

	return &Session{dialer: d}, nil
}

// Dials returns how many sessions were opened.
func (d *Dialer) Dials() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.dials
}

// Messages returns every message accepted by any session.
func (d *Dialer) Messages() []*mail.Message {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]*mail.Message(nil), d.messages...)
}

// Session discards messages after logging them.
type Session struct {
	dialer *Dialer
	closed bool
}

// Send logs the message at info level.
func (s *Session) Send(ctx context.Context, msg *mail.Message) error {
	if s.closed {
		return mail.NewError(mail.CodeFatal, "send", mail.ErrSessionClosed)
	}

	s.dialer.logger.InfoContext(ctx, "dry run: message not sent",
		"to", msg.To(),
		"subject", msg.Subject(),
		"size", len(msg.Bytes()),
	)

	s.dialer.mx.Lock()
	s.dialer.messages = append(s.dialer.messages, msg)
	s.dialer.mx.Unlock()

	return nil
}

// Close is idempotent.
func (s *Session) Close() error {
	s.closed = true
	return nil
}
