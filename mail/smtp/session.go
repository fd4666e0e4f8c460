package smtp

import (
	"context"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailmerge/mail"
)

var _ mail.Session = (*Session)(nil)

// Session is one authenticated SMTP connection.
type Session struct {
	mx     sync.Mutex
	client *smtp.Client
	host   string
	closed bool
}

func newSession(client *smtp.Client, host string) *Session {
	return &Session{client: client, host: host}
}

// Send transmits one message. Transport errors are classified as
// mail.CodeDisconnected (the session becomes unusable), mail.CodeSenderRejected
// (MAIL FROM refused) or mail.CodeFatal.
func (s *Session) Send(ctx context.Context, msg *mail.Message) error {
	_, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		span.SetStatus(codes.Error, "session is closed")
		return mail.NewError(mail.CodeFatal, "send", mail.ErrSessionClosed)
	}

	from, err := msg.Sender()
	if err != nil {
		recordError(span, err, "invalid sender")
		return mail.NewError(mail.CodeFatal, "send", err)
	}
	recipients, err := msg.Recipients()
	if err != nil {
		recordError(span, err, "invalid recipients")
		return mail.NewError(mail.CodeFatal, "send", err)
	}

	span.SetAttributes(
		attribute.String("smtp.host", s.host),
		attribute.String("smtp.from", from),
		attribute.Int("smtp.recipients_count", len(recipients)),
	)

	if err := s.client.Mail(from); err != nil {
		recordError(span, err, "failed to set sender")
		return s.classify("mail from", errors.Wrap(err, "failed to set sender"), true)
	}

	for _, rcpt := range recipients {
		if err := s.client.Rcpt(rcpt); err != nil {
			recordError(span, err, "failed to set recipient")
			return s.classify("rcpt to", errors.Wrapf(err, "failed to set recipient: %s", rcpt), false)
		}
	}

	writer, err := s.client.Data()
	if err != nil {
		recordError(span, err, "failed to get data writer")
		return s.classify("data", errors.Wrap(err, "failed to get data writer"), false)
	}

	if _, err := writer.Write(msg.Bytes()); err != nil {
		_ = writer.Close()
		recordError(span, err, "failed to write message")
		return s.classify("data", errors.Wrap(err, "failed to write message"), false)
	}

	// the relay accepts or refuses the message on close
	if err := writer.Close(); err != nil {
		recordError(span, err, "message refused")
		return s.classify("data", errors.Wrap(err, "message refused"), false)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// classify must be called with s.mx held.
func (s *Session) classify(op string, err error, senderStage bool) error {
	var protoErr *textproto.Error
	isProto := errors.As(err, &protoErr)

	if isDisconnect(err) || (isProto && protoErr.Code == 421) {
		s.closed = true
		_ = s.client.Close()
		return mail.NewError(mail.CodeDisconnected, op, err)
	}

	if senderStage && isProto {
		return mail.NewError(mail.CodeSenderRejected, op, err)
	}

	return mail.NewError(mail.CodeFatal, op, err)
}

// Close sends QUIT and closes the connection. It is safe to call more than once.
// A QUIT on a connection the peer already dropped is not an error.
func (s *Session) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.client.Quit(); err != nil {
		_ = s.client.Close()
		if isDisconnect(err) {
			return nil
		}
		return errors.Wrap(err, "failed to quit SMTP session")
	}
	return nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED)
}
