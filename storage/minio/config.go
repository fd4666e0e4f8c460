package minio

import "time"

const DefaultRegion = "us-east-1"

// Config contains S3-compatible storage connection configuration.
// Works with MinIO, AWS S3, and other S3-compatible providers.
type Config struct {
	Endpoint  string        `envconfig:"S3_ENDPOINT" yaml:"endpoint"`     // e.g. "localhost:9000" for MinIO, "s3.amazonaws.com" for AWS
	AccessKey string        `envconfig:"S3_ACCESS_KEY" yaml:"access_key"` // Access key ID
	SecretKey string        `envconfig:"S3_SECRET_KEY" yaml:"secret_key"` // Secret access key
	Region    string        `envconfig:"S3_REGION" yaml:"region"`
	Secure    bool          `envconfig:"S3_SECURE" yaml:"secure"`   // Use HTTPS
	Timeout   time.Duration `envconfig:"S3_TIMEOUT" yaml:"timeout"` // per-request timeout, none when zero
}

// DefaultConfig returns HTTPS settings without an endpoint.
func DefaultConfig() Config {
	return Config{
		Region: DefaultRegion,
		Secure: true,
	}
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}
