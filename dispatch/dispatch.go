// Package dispatch drives a mail merge run: it renders one message per row
// and delivers it over a single relay session, recovering from the two
// transient relay failures once per message.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/mailmerge/mail"
	"github.com/pure-golang/mailmerge/metrics"
	"github.com/pure-golang/mailmerge/rows"
)

// DefaultCooldown is how long the relay is left alone after it refused the sender.
const DefaultCooldown = 180 * time.Second

type Config struct {
	Cooldown time.Duration // zero means DefaultCooldown
	Skip     int           // data rows to skip before sending
	Limit    int           // rows to send after Skip, 0 means all
}

// RowSource yields rows until io.EOF. *rows.Reader satisfies it.
type RowSource interface {
	Next() (rows.Row, error)
}

// Renderer turns a row into a message. *template.Template satisfies it.
type Renderer interface {
	Render(row rows.Row) (*mail.Message, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(l *Loop)

// WithOutput sets the writer for progress lines. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(l *Loop) {
		l.out = w
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithSleeper replaces the cooldown sleep, e.g. in tests.
func WithSleeper(s Sleeper) Option {
	return func(l *Loop) {
		l.sleep = s
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(l *Loop) {
		l.metrics = r
	}
}

// Loop sends one message per row through sessions opened by its dialer.
type Loop struct {
	dialer  mail.Dialer
	config  Config
	out     io.Writer
	logger  *slog.Logger
	sleep   Sleeper
	metrics *metrics.Recorder
}

func New(dialer mail.Dialer, config Config, opts ...Option) *Loop {
	if config.Cooldown == 0 {
		config.Cooldown = DefaultCooldown
	}

	l := &Loop{
		dialer: dialer,
		config: config,
		out:    os.Stdout,
		logger: slog.Default(),
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run sends a message for every row of src and returns the number of
// messages accepted by the relay. On error the count sent so far is
// returned along with it.
func (l *Loop) Run(ctx context.Context, tpl Renderer, src RowSource) (sent int, err error) {
	ctx, span := tracer.Start(ctx, "Dispatch.Run")
	defer func() {
		span.SetAttributes(attribute.Int("mailmerge.sent", sent))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch failed")
		}
		span.End()
	}()

	session, err := l.dialer.Dial(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to connect to relay")
	}
	defer func() {
		// session is replaced on reconnect and nil when a reconnect failed
		if session == nil {
			return
		}
		if closeErr := session.Close(); closeErr != nil {
			l.logger.WarnContext(ctx, "failed to close relay session", slog.Any("error", closeErr))
		}
	}()

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return sent, errors.Wrap(err, "run interrupted")
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, errors.Wrap(err, "failed to read row")
		}

		if index < l.config.Skip {
			continue
		}
		if l.config.Limit > 0 && index-l.config.Skip >= l.config.Limit {
			l.logger.InfoContext(ctx, "row limit reached", slog.Int("limit", l.config.Limit))
			return sent, nil
		}

		msg, err := tpl.Render(row)
		if err != nil {
			return sent, errors.Wrapf(err, "failed to render row %d", index+1)
		}

		fmt.Fprintf(l.out, "Sending to %s\n", msg.To())

		session, err = l.deliver(ctx, session, msg)
		if err != nil {
			return sent, errors.Wrapf(err, "failed to send to %s", msg.To())
		}
		sent++
	}
}

// deliver sends msg, retrying once on a transient failure. It returns the
// session that is current afterwards: s, its replacement after a reconnect,
// or nil when s was closed and no replacement could be opened.
func (l *Loop) deliver(ctx context.Context, s mail.Session, msg *mail.Message) (mail.Session, error) {
	err := l.send(ctx, s, msg)

	outcome := mail.OutcomeOf(err)
	switch outcome {
	case mail.Sent:
		return s, nil
	case mail.Disconnected:
	case mail.SenderRejected:
		fmt.Fprintf(l.out, "Pausing %s for relay rate limit\n", l.config.Cooldown)
	default:
		return s, err
	}

	l.logger.WarnContext(ctx, "transient relay failure, retrying",
		slog.String("outcome", outcome.String()),
		slog.String("to", msg.To()),
		slog.Any("error", err),
	)
	l.metrics.Reconnect(outcome.String())

	if closeErr := s.Close(); closeErr != nil {
		l.logger.DebugContext(ctx, "failed to close broken session", slog.Any("error", closeErr))
	}

	if outcome == mail.SenderRejected {
		if err := l.sleep(ctx, l.config.Cooldown); err != nil {
			return nil, errors.Wrap(err, "cooldown interrupted")
		}
	}

	fmt.Fprintln(l.out, "Reconnecting to SMTP server")
	next, err := l.dialer.Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reconnect to relay")
	}

	if err := l.send(ctx, next, msg); err != nil {
		return next, errors.Wrap(err, "retry failed")
	}

	return next, nil
}

func (l *Loop) send(ctx context.Context, s mail.Session, msg *mail.Message) error {
	start := time.Now()
	err := s.Send(ctx, msg)
	l.metrics.Attempt(mail.OutcomeOf(err).String(), time.Since(start))
	return err
}
