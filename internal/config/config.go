// Package config resolves stache client configuration from the environment
// and an optional config file.
//
// Sources, highest priority first:
//  1. Environment variables with the STACHE_ prefix
//  2. Config file (~/.stache/config.yaml or ./config.yaml)
//  3. Defaults
//
// Transport selection:
//   - transport="auto" (default): Lambda if STACHE_LAMBDA_FUNCTION is set,
//     otherwise HTTP
//   - transport="http": force the API Gateway HTTP transport
//   - transport="lambda": force direct Lambda invocation
//
// The struct is a snapshot: validated once in Load and never mutated after.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidTransport indicates an unknown transport mode.
	ErrInvalidTransport = errors.New("invalid transport mode")

	// ErrInvalidAPIURL indicates a malformed API endpoint URL.
	ErrInvalidAPIURL = errors.New("invalid API URL")

	// ErrInvalidTimeout indicates a timeout outside the accepted range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrMissingLambdaFunction indicates the Lambda transport was selected
	// without a function name or ARN.
	ErrMissingLambdaFunction = errors.New("missing Lambda function")
)

// Transport mode identifiers used in Config.Transport.
const (
	TransportAuto   = "auto"
	TransportHTTP   = "http"
	TransportLambda = "lambda"
)

// Timeout bounds, in seconds. Lambda allows up to its own 15 minute cap.
const (
	minTimeout       = 1 * time.Second
	maxHTTPTimeout   = 300 * time.Second
	maxLambdaTimeout = 900 * time.Second
)

// loaderOverridePrefix keys per-extension loader overrides in the
// environment, e.g. STACHE_LOADER_PDF=OCRPDFLoader.
const loaderOverridePrefix = "STACHE_LOADER_"

// Config is an immutable snapshot of client configuration.
type Config struct {
	// Transport mode: "auto", "http", or "lambda".
	Transport string `mapstructure:"transport"`

	// HTTP transport settings.
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// OAuth2 client-credentials settings for the HTTP transport. OAuth is
	// attached only when id, secret, and token URL are all present.
	CognitoClientID     string `mapstructure:"cognito_client_id"`
	CognitoClientSecret string `mapstructure:"cognito_client_secret"` // SENSITIVE: never logged
	CognitoTokenURL     string `mapstructure:"cognito_token_url"`
	CognitoScope        string `mapstructure:"cognito_scope"`

	// Lambda transport settings.
	LambdaFunction string        `mapstructure:"lambda_function"`
	AWSProfile     string        `mapstructure:"aws_profile"`
	AWSRegion      string        `mapstructure:"aws_region"`
	LambdaTimeout  time.Duration `mapstructure:"lambda_timeout"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from the environment and config file, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".stache"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("STACHE")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportAuto)
	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("lambda_timeout", 60*time.Second)
	v.SetDefault("log_level", "info")
}

// Validate checks field ranges and transport-specific requirements.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportAuto, TransportHTTP, TransportLambda:
	default:
		return fmt.Errorf("%w: %q (must be auto, http, or lambda)", ErrInvalidTransport, c.Transport)
	}

	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidAPIURL, c.APIURL)
	}

	if c.Timeout < minTimeout || c.Timeout > maxHTTPTimeout {
		return fmt.Errorf("%w: timeout %s outside [%s, %s]", ErrInvalidTimeout, c.Timeout, minTimeout, maxHTTPTimeout)
	}
	if c.LambdaTimeout < minTimeout || c.LambdaTimeout > maxLambdaTimeout {
		return fmt.Errorf("%w: lambda_timeout %s outside [%s, %s]", ErrInvalidTimeout, c.LambdaTimeout, minTimeout, maxLambdaTimeout)
	}

	if c.Transport == TransportLambda && c.LambdaFunction == "" {
		return fmt.Errorf("%w: Lambda transport requires STACHE_LAMBDA_FUNCTION (function name or ARN)", ErrMissingLambdaFunction)
	}

	return nil
}

// ResolvedTransport reports the transport that will actually be used: the
// explicit mode when set, otherwise Lambda if a function is configured and
// HTTP as the fallback.
func (c *Config) ResolvedTransport() string {
	if c.Transport != TransportAuto {
		return c.Transport
	}
	if c.LambdaFunction != "" {
		return TransportLambda
	}
	return TransportHTTP
}

// OAuthEnabled reports whether the HTTP transport should attach an OAuth2
// client-credentials token source.
func (c *Config) OAuthEnabled() bool {
	return c.CognitoClientID != "" && c.CognitoClientSecret != "" && c.CognitoTokenURL != ""
}

// Target returns the endpoint identifier for the resolved transport, for
// display in the health command.
func (c *Config) Target() string {
	if c.ResolvedTransport() == TransportLambda {
		return c.LambdaFunction
	}
	return c.APIURL
}

// LoaderOverrides collects STACHE_LOADER_<EXT>=<LoaderName> directives from
// the environment into an extension -> loader-name table. Extensions are
// lowercased and stored without a leading dot.
func LoaderOverrides() map[string]string {
	overrides := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, loaderOverridePrefix) {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(key, loaderOverridePrefix))
		if ext == "" || value == "" {
			continue
		}
		overrides[ext] = value
	}
	return overrides
}
