package env

import (
	"bytes"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEnvFile = ".env"
	// Prefix is prepended to every variable name, e.g. MAILMERGE_SMTP_HOST.
	// The unprefixed name (SMTP_HOST) is consulted when the prefixed one is unset.
	Prefix = "MAILMERGE"
)

// InitConfig overlays environment variables onto each config.
// Fields whose variables are unset keep their current value.
func InitConfig(configs ...any) error {
	// Try to load .env file, but don't fail if it doesn't exist
	// nolint:errcheck // .env file is optional, failure is acceptable
	_ = godotenv.Load(DefaultEnvFile)

	for _, config := range configs {
		if err := envconfig.Process(Prefix, config); err != nil {
			return errors.Wrap(err, "failed to envconfig.Process")
		}
	}

	return nil
}

// LoadYAML overlays a YAML file onto config. Unknown keys are an error.
func LoadYAML(path string, config any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config file")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}

	return nil
}
