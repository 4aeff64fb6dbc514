package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Transport:     TransportAuto,
		APIURL:        "http://localhost:8000",
		Timeout:       60 * time.Second,
		AWSRegion:     "us-east-1",
		LambdaTimeout: 60 * time.Second,
		LogLevel:      "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Transport = "grpc" },
			wantErr: ErrInvalidTransport,
		},
		{
			name:    "api url without scheme",
			mutate:  func(c *Config) { c.APIURL = "localhost:8000" },
			wantErr: ErrInvalidAPIURL,
		},
		{
			name:   "https url accepted",
			mutate: func(c *Config) { c.APIURL = "https://api.example.com" },
		},
		{
			name:    "timeout below minimum",
			mutate:  func(c *Config) { c.Timeout = 500 * time.Millisecond },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "timeout above http maximum",
			mutate:  func(c *Config) { c.Timeout = 301 * time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:   "lambda timeout may exceed http maximum",
			mutate: func(c *Config) { c.LambdaTimeout = 900 * time.Second },
		},
		{
			name:    "lambda timeout above lambda maximum",
			mutate:  func(c *Config) { c.LambdaTimeout = 901 * time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "explicit lambda without function",
			mutate:  func(c *Config) { c.Transport = TransportLambda },
			wantErr: ErrMissingLambdaFunction,
		},
		{
			name: "explicit lambda with function",
			mutate: func(c *Config) {
				c.Transport = TransportLambda
				c.LambdaFunction = "stache-prod"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolvedTransport(t *testing.T) {
	tests := []struct {
		name           string
		transport      string
		lambdaFunction string
		want           string
	}{
		{"auto without function", TransportAuto, "", TransportHTTP},
		{"auto with function", TransportAuto, "stache-prod", TransportLambda},
		{"explicit http ignores function", TransportHTTP, "stache-prod", TransportHTTP},
		{"explicit lambda", TransportLambda, "stache-prod", TransportLambda},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Transport = tt.transport
			cfg.LambdaFunction = tt.lambdaFunction

			if got := cfg.ResolvedTransport(); got != tt.want {
				t.Errorf("ResolvedTransport() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOAuthEnabled(t *testing.T) {
	tests := []struct {
		name            string
		id, secret, url string
		want            bool
	}{
		{"all present", "client", "secret", "https://auth.example.com/token", true},
		{"missing id", "", "secret", "https://auth.example.com/token", false},
		{"missing secret", "client", "", "https://auth.example.com/token", false},
		{"missing token url", "client", "secret", "", false},
		{"all absent", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.CognitoClientID = tt.id
			cfg.CognitoClientSecret = tt.secret
			cfg.CognitoTokenURL = tt.url

			if got := cfg.OAuthEnabled(); got != tt.want {
				t.Errorf("OAuthEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTarget(t *testing.T) {
	cfg := validConfig()
	if got := cfg.Target(); got != "http://localhost:8000" {
		t.Errorf("Target() = %q, want API URL", got)
	}

	cfg.LambdaFunction = "stache-prod"
	if got := cfg.Target(); got != "stache-prod" {
		t.Errorf("Target() = %q, want Lambda function name", got)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("STACHE_TRANSPORT", "http")
	t.Setenv("STACHE_API_URL", "https://api.example.com/")
	t.Setenv("STACHE_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %q, want %q", cfg.Transport, TransportHTTP)
	}
	// Trailing slash is stripped so path joining stays predictable.
	if cfg.APIURL != "https://api.example.com" {
		t.Errorf("APIURL = %q, want trailing slash stripped", cfg.APIURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.AWSRegion != "us-east-1" {
		t.Errorf("AWSRegion = %q, want default us-east-1", cfg.AWSRegion)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("STACHE_TRANSPORT", "carrier-pigeon")

	if _, err := Load(); !errors.Is(err, ErrInvalidTransport) {
		t.Errorf("Load() error = %v, want ErrInvalidTransport", err)
	}
}

func TestLoaderOverrides(t *testing.T) {
	t.Setenv("STACHE_LOADER_PDF", "OCRPDFLoader")
	t.Setenv("STACHE_LOADER_JPG", "OCRImageLoader")

	overrides := LoaderOverrides()

	if got := overrides["pdf"]; got != "OCRPDFLoader" {
		t.Errorf("overrides[pdf] = %q, want OCRPDFLoader", got)
	}
	if got := overrides["jpg"]; got != "OCRImageLoader" {
		t.Errorf("overrides[jpg] = %q, want OCRImageLoader", got)
	}
}
