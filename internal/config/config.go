package config

import (
	"os"
	"strconv"

	"vbcaudit/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	AI     AIConfig
	Data   DataConfig
	Report ReportConfig
}

// AIConfig holds the settings for the narrative diagnostics service. An
// empty key disables narrative enrichment; validation still runs.
type AIConfig struct {
	OpenAIKey     string
	OpenAIModel   string
	SystemContext string
	MaxTokens     int
	Temperature   float64
	MaxConcurrent int
}

// DataConfig holds the input file locations.
type DataConfig struct {
	Dir           string
	ContractsFile string
	ReferenceFile string
}

// ReportConfig holds the report output settings.
type ReportConfig struct {
	OutputPath string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		AI: AIConfig{
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			SystemContext: getEnvOrDefault("AI_SYSTEM_CONTEXT", ""),
			MaxTokens:     getEnvIntOrDefault("AI_MAX_TOKENS", 1500),
			Temperature:   getEnvFloatOrDefault("AI_TEMPERATURE", 0.2),
			MaxConcurrent: getEnvIntOrDefault("AI_MAX_CONCURRENT", 4),
		},
		Data: DataConfig{
			Dir:           getEnvOrDefault("DATA_DIR", "data"),
			ContractsFile: getEnvOrDefault("CONTRACT_METADATA_FILE", "config/contract_metadata.json"),
			ReferenceFile: getEnvOrDefault("REFERENCE_RANGES_FILE", "config/reference_ranges.json"),
		},
		Report: ReportConfig{
			OutputPath: getEnvOrDefault("REPORT_OUTPUT", "output/vbc_validation_report.html"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(c *Config) error {
	if c.Data.ContractsFile == "" {
		return errors.ConfigInvalid("CONTRACT_METADATA_FILE must not be empty")
	}
	if c.Data.ReferenceFile == "" {
		return errors.ConfigInvalid("REFERENCE_RANGES_FILE must not be empty")
	}
	if c.Report.OutputPath == "" {
		return errors.ConfigInvalid("REPORT_OUTPUT must not be empty")
	}
	if c.AI.MaxConcurrent < 1 {
		return errors.ConfigInvalid("AI_MAX_CONCURRENT must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloatOrDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
