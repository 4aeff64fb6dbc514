package stache

import (
	"context"
	"log/slog"

	"github.com/stachelabs/stache-go/internal/config"
)

// NewTransport creates the transport selected by the configuration: Lambda
// when the resolved mode is "lambda", HTTP otherwise.
func NewTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.ResolvedTransport() == config.TransportLambda {
		return NewLambdaTransport(ctx, cfg, logger)
	}
	return NewHTTPTransport(cfg, logger), nil
}
