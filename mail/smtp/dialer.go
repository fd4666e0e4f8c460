package smtp

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailmerge/mail"
)

var _ mail.Dialer = (*Dialer)(nil)

// Dialer opens authenticated SMTP sessions using net/smtp.
type Dialer struct {
	cfg Config
}

// NewDialer creates a Dialer. Zero Host, Port or Mode fall back to the defaults.
func NewDialer(cfg Config) *Dialer {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}
	return &Dialer{cfg: cfg}
}

// Address returns host:port of the relay.
func (d *Dialer) Address() string {
	return net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
}

// Dial connects, negotiates TLS according to the mode and authenticates.
// Every failure is reported as a mail.CodeConnect error.
func (d *Dialer) Dial(ctx context.Context) (mail.Session, error) {
	ctx, span := tracer.Start(ctx, "SMTP.Dial", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", d.cfg.Host),
		attribute.Int("smtp.port", d.cfg.Port),
		attribute.String("smtp.mode", string(d.cfg.Mode)),
		attribute.Bool("smtp.auth", d.cfg.Username != ""),
	)

	client, err := d.connect(ctx)
	if err != nil {
		recordError(span, err, "failed to connect")
		return nil, mail.NewError(mail.CodeConnect, "dial", err)
	}

	if err := d.handshake(client); err != nil {
		_ = client.Close()
		recordError(span, err, "failed to handshake")
		return nil, mail.NewError(mail.CodeConnect, "dial", err)
	}

	span.SetStatus(codes.Ok, "")
	return newSession(client, d.cfg.Host), nil
}

func (d *Dialer) connect(ctx context.Context) (*smtp.Client, error) {
	netDialer := &net.Dialer{Timeout: d.cfg.DialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if d.cfg.Mode == ModeImplicit {
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: d.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", d.Address())
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", d.Address())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to SMTP server %s", d.Address())
	}

	client, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to read SMTP greeting")
	}

	return client, nil
}

func (d *Dialer) handshake(client *smtp.Client) error {
	helo := d.cfg.HeloName
	if helo == "" {
		helo = "localhost"
	}
	if err := client.Hello(helo); err != nil {
		return errors.Wrap(err, "failed to say hello")
	}

	if d.cfg.Mode == ModeStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("server does not support STARTTLS")
		}
		if err := client.StartTLS(d.tlsConfig()); err != nil {
			return errors.Wrap(err, "failed to start TLS")
		}
	}

	if d.cfg.Username == "" {
		return nil
	}

	ok, mechanisms := client.Extension("AUTH")
	if !ok {
		return errors.New("server does not support AUTH")
	}
	if err := client.Auth(chooseAuth(mechanisms, d.cfg.Username, d.cfg.Password, d.cfg.Host)); err != nil {
		return errors.Wrap(err, "failed to authenticate")
	}

	return nil
}

func (d *Dialer) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         d.cfg.Host,
		InsecureSkipVerify: d.cfg.Insecure, // #nosec G402 -- controlled by config, user's responsibility
	}
}
