package smtp

import (
	"time"

	"github.com/pkg/errors"
)

// Mode selects how the connection is secured.
type Mode string

const (
	ModeImplicit Mode = "implicit" // TLS from the first byte, usually port 465
	ModeStartTLS Mode = "starttls" // plaintext upgraded with STARTTLS, usually port 587
	ModePlain    Mode = "plain"    // no TLS, local relays only
)

const (
	DefaultHost = "smtp.gmail.com"
	DefaultPort = 465
	DefaultMode = ModeImplicit
)

// Config contains SMTP connection parameters. They are fixed for the whole run.
type Config struct {
	Host        string        `envconfig:"SMTP_HOST" yaml:"host"`                 // smtp.gmail.com
	Port        int           `envconfig:"SMTP_PORT" yaml:"port"`                 // 465 for implicit TLS, 587 for STARTTLS
	Mode        Mode          `envconfig:"SMTP_MODE" yaml:"mode"`                 // implicit | starttls | plain
	Username    string        `envconfig:"SMTP_USER" yaml:"username"`             // username or email
	Password    string        `envconfig:"SMTP_PASSWORD" yaml:"password"`         // password or app password
	Insecure    bool          `envconfig:"SMTP_INSECURE" yaml:"insecure"`         // skip certificate verification
	HeloName    string        `envconfig:"SMTP_HELO" yaml:"helo_name"`            // EHLO argument, "localhost" when empty
	DialTimeout time.Duration `envconfig:"SMTP_DIAL_TIMEOUT" yaml:"dial_timeout"` // TCP connect timeout, none when zero
}

// DefaultConfig returns the relay settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Mode: DefaultMode,
	}
}

// Validate checks that the config can be used to dial.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("smtp host is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("smtp port %d is out of range", c.Port)
	}
	switch c.Mode {
	case ModeImplicit, ModeStartTLS, ModePlain:
	default:
		return errors.Errorf("unknown smtp mode %q (want implicit, starttls or plain)", c.Mode)
	}
	if c.DialTimeout < 0 {
		return errors.New("smtp dial timeout is negative")
	}
	return nil
}
