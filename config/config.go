// Package config assembles the run configuration from built-in defaults,
// an optional YAML file and the environment, in that order of precedence.
package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/env"
	"github.com/pure-golang/mailmerge/logger"
	"github.com/pure-golang/mailmerge/mail/smtp"
	"github.com/pure-golang/mailmerge/metrics"
	"github.com/pure-golang/mailmerge/storage/minio"
	"github.com/pure-golang/mailmerge/tracing/otlp"
)

type Config struct {
	SMTP     smtp.Config    `yaml:"smtp" ignored:"true"`
	Cooldown time.Duration  `envconfig:"COOLDOWN" yaml:"cooldown"` // pause after the relay refuses the sender, must be positive
	Log      logger.Config  `yaml:"log" ignored:"true"`
	Metrics  metrics.Config `yaml:"metrics" ignored:"true"`
	Tracing  otlp.Config    `yaml:"tracing" ignored:"true"`
	Storage  minio.Config   `yaml:"storage" ignored:"true"`
}

func Default() Config {
	return Config{
		SMTP:     smtp.DefaultConfig(),
		Cooldown: dispatch.DefaultCooldown,
		Log:      logger.DefaultConfig(),
		Metrics:  metrics.Config{Job: metrics.DefaultJob},
		Tracing:  otlp.Config{ServiceName: otlp.DefaultServiceName},
		Storage:  minio.DefaultConfig(),
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := env.LoadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}

	// sub-configs carry their own prefixed names, so each is processed on its own
	if err := env.InitConfig(&cfg, &cfg.SMTP, &cfg.Log, &cfg.Metrics, &cfg.Tracing, &cfg.Storage); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := c.SMTP.Validate(); err != nil {
		return errors.Wrap(err, "invalid smtp config")
	}
	if c.Cooldown <= 0 {
		return errors.Errorf("cooldown %s must be positive", c.Cooldown)
	}
	return nil
}

// Dispatch returns the dispatch loop settings.
func (c Config) Dispatch(skip, limit int) dispatch.Config {
	return dispatch.Config{
		Cooldown: c.Cooldown,
		Skip:     skip,
		Limit:    limit,
	}
}
