package mcpserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stachelabs/stache-go/internal/config"
	"github.com/stachelabs/stache-go/internal/log"
	"github.com/stachelabs/stache-go/internal/stache"
)

func testClient(t *testing.T) *stache.Client {
	t.Helper()
	cfg := &config.Config{
		Transport:     config.TransportHTTP,
		APIURL:        "http://localhost:9",
		Timeout:       5 * time.Second,
		LambdaTimeout: 5 * time.Second,
	}
	client, err := stache.NewClient(t.Context(), cfg, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewServerValidation(t *testing.T) {
	client := testClient(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing name",
			cfg:     Config{Version: "1.0.0", Client: client},
			wantErr: "name is required",
		},
		{
			name:    "missing version",
			cfg:     Config{Name: "stache", Client: client},
			wantErr: "version is required",
		},
		{
			name:    "missing client",
			cfg:     Config{Name: "stache", Version: "1.0.0"},
			wantErr: "client is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.cfg)
			if err == nil {
				t.Fatal("NewServer() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewServer() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	server, err := NewServer(Config{
		Name:    "stache",
		Version: "1.0.0",
		Client:  testClient(t),
		Logger:  log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if server.mcpServer == nil {
		t.Error("server should hold an MCP server instance")
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	// Close is idempotent.
	if err := server.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
