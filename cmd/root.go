package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "hireguard"
)

type Config struct {
	AI          *AIConfig    `mapstructure:"ai"`
	Live        *LiveConfig  `mapstructure:"live"`
	Audio       *AudioConfig `mapstructure:"audio"`
	MetricsAddr string       `mapstructure:"metrics-addr"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file" json:"-"`
	ScanModel      string `mapstructure:"scan-model"`
	ReportModel    string `mapstructure:"report-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
	ThinkingBudget int    `mapstructure:"thinking-budget"`
}

type LiveConfig struct {
	Model              string        `mapstructure:"model"`
	Voice              string        `mapstructure:"voice"`
	Endpoint           string        `mapstructure:"endpoint"`
	SetupTimeout       time.Duration `mapstructure:"setup-timeout"`
	InputTranscription bool          `mapstructure:"input-transcription"`
}

type AudioConfig struct {
	InputFormat string `mapstructure:"input-format"`
	InputDevice string `mapstructure:"input-device"`
	FrameSize   int    `mapstructure:"frame-size"`
	// Playback selects the output sink: ffplay or none.
	Playback string `mapstructure:"playback"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hireguard is a voice-first technical interview assistant",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hireguard.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.scan-model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.report-model", "gemini-2.5-pro")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 500)
	viper.SetDefault("ai.gemini.thinking-budget", 10000)

	viper.SetDefault("live.model", "gemini-2.5-flash-native-audio-preview-09-2025")
	viper.SetDefault("live.voice", "Kore")
	viper.SetDefault("live.setup-timeout", 15*time.Second)
	viper.SetDefault("live.input-transcription", true)

	viper.SetDefault("audio.frame-size", 4096)
	viper.SetDefault("audio.playback", "ffplay")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless it was given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Live == nil {
		config.Live = &LiveConfig{}
	}
	if config.Audio == nil {
		config.Audio = &AudioConfig{}
	}

	return config, nil
}
