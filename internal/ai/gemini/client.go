package gemini

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/logger"
	"github.com/spigell/hireguard/internal/metrics"
)

// Client bundles the structured analysis calls and the live dialer behind a
// single API key.
type Client struct {
	*Analyst
	*LiveDialer
}

// ClientOptions configures a Client.
type ClientOptions struct {
	APIKey         string
	ScanModel      string
	ReportModel    string
	MaxRetries     int
	ThinkingBudget int
	MaxLogLength   int

	LiveEndpoint      string
	SetupTimeout      time.Duration
	KeepaliveInterval time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewClient creates the scan and report generators and the live dialer.
// The report model falls back to the scan model; the scan generator is shared
// only when no thinking budget applies to the report.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	scan, err := NewGenerator(ctx, GeneratorOptions{
		APIKey:     opts.APIKey,
		Model:      opts.ScanModel,
		MaxRetries: opts.MaxRetries,
		Logger:     logger.WithModel(opts.Logger, ProviderName, opts.ScanModel),
	})
	if err != nil {
		return nil, fmt.Errorf("scan generator: %w", err)
	}

	reportModel := opts.ReportModel
	if reportModel == "" {
		reportModel = opts.ScanModel
	}

	report := scan
	if reportModel != opts.ScanModel || opts.ThinkingBudget > 0 {
		report, err = NewGenerator(ctx, GeneratorOptions{
			APIKey:         opts.APIKey,
			Model:          reportModel,
			MaxRetries:     opts.MaxRetries,
			ThinkingBudget: opts.ThinkingBudget,
			Logger:         logger.WithModel(opts.Logger, ProviderName, reportModel),
		})
		if err != nil {
			return nil, fmt.Errorf("report generator: %w", err)
		}
	}

	return &Client{
		Analyst: NewAnalyst(scan, report, logger.WithFields(opts.Logger, zap.String(logger.FieldProvider, ProviderName)), opts.Metrics, opts.MaxLogLength),
		LiveDialer: &LiveDialer{
			APIKey:            opts.APIKey,
			Endpoint:          opts.LiveEndpoint,
			SetupTimeout:      opts.SetupTimeout,
			KeepaliveInterval: opts.KeepaliveInterval,
			Logger:            logger.WithFields(opts.Logger, zap.String(logger.FieldProvider, ProviderName)),
		},
	}, nil
}
