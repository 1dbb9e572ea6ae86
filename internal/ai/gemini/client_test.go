package gemini

import (
	"context"
	"strings"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts ClientOptions
		want string
	}{
		{
			name: "missing api key",
			opts: ClientOptions{ScanModel: "gemini-2.5-flash"},
			want: "api key is required",
		},
		{
			name: "missing scan model",
			opts: ClientOptions{APIKey: "key"},
			want: "model is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewClient(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewClientSharesScanGenerator(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), ClientOptions{
		APIKey:       "key",
		ScanModel:    "gemini-2.5-flash",
		LiveEndpoint: "ws://127.0.0.1/live",
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client.Analyst.scan != client.Analyst.report {
		t.Fatalf("expected report to reuse the scan generator")
	}
	if client.LiveDialer.APIKey != "key" || client.LiveDialer.Endpoint != "ws://127.0.0.1/live" {
		t.Fatalf("unexpected live dialer %+v", client.LiveDialer)
	}
}

func TestNewClientAppliesThinkingBudgetToSameModel(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), ClientOptions{
		APIKey:         "key",
		ScanModel:      "gemini-2.5-flash",
		ReportModel:    "gemini-2.5-flash",
		ThinkingBudget: 10000,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client.Analyst.scan == client.Analyst.report {
		t.Fatalf("expected a dedicated report generator when a thinking budget is set")
	}
	report, ok := client.Analyst.report.(*Generator)
	if !ok {
		t.Fatalf("unexpected report generator %T", client.Analyst.report)
	}
	if report.model != "gemini-2.5-flash" {
		t.Fatalf("expected report model gemini-2.5-flash, got %q", report.model)
	}
	if report.thinkingBudget == nil || *report.thinkingBudget != 10000 {
		t.Fatalf("expected thinking budget 10000, got %v", report.thinkingBudget)
	}
	if scan := client.Analyst.scan.(*Generator); scan.thinkingBudget != nil {
		t.Fatalf("expected scan generator without thinking budget")
	}
}
