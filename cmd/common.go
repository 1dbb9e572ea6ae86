package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hireguard/internal/ai/gemini"
	"github.com/spigell/hireguard/internal/logger"
	"github.com/spigell/hireguard/internal/metrics"
	"github.com/spigell/hireguard/internal/secrets"
)

// setup builds the logger and the config shared by every command.
func setup() (*zap.Logger, *Config) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating a logger: %s\n", err)
		os.Exit(1)
	}

	config, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}

	log.Info("starting the hireguard", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return log, config
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("resume", "r", "", "file with the candidate resume text")
	cmd.Flags().StringP("job", "J", "", "file with the job description text")
	cmd.MarkFlagRequired("resume")
	cmd.MarkFlagRequired("job")
}

// readProfileInputs returns the resume and job description given by flags.
func readProfileInputs(cmd *cobra.Command) (string, string, error) {
	resume, err := readTextFile(cmd.Flag("resume").Value.String())
	if err != nil {
		return "", "", fmt.Errorf("resume: %w", err)
	}
	job, err := readTextFile(cmd.Flag("job").Value.String())
	if err != nil {
		return "", "", fmt.Errorf("job description: %w", err)
	}
	return resume, job, nil
}

func readTextFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("file is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("file %q is empty", path)
	}
	return text, nil
}

func newModelClient(ctx context.Context, config *Config, log *zap.Logger, m *metrics.Metrics) (*gemini.Client, error) {
	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != gemini.ProviderName {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
		Env:  []string{"GEMINI_API_KEY", "API_KEY"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	return gemini.NewClient(ctx, gemini.ClientOptions{
		APIKey:         apiKey,
		ScanModel:      config.AI.Gemini.ScanModel,
		ReportModel:    config.AI.Gemini.ReportModel,
		MaxRetries:     config.AI.Gemini.MaxRetries,
		ThinkingBudget: config.AI.Gemini.ThinkingBudget,
		MaxLogLength:   config.AI.Gemini.MaxLogLength,
		LiveEndpoint:   config.Live.Endpoint,
		SetupTimeout:   config.Live.SetupTimeout,
		Logger:         log,
		Metrics:        m,
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	return err
}
