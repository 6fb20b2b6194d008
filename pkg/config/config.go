package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envSpreadsheetID    = "SPREADSHEET_ID"
	envCredentialsFile  = "GOOGLE_CREDENTIALS_FILE"
)

const (
	defaultMaxPendingCases      = 1000
	defaultPendingTTLMinutes    = 15
	defaultSweepIntervalMinutes = 5
	defaultGroupingDelaySeconds = 5
	defaultMaxDataRow           = 199
	defaultSheetName            = "Cases"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Sheets   SheetsConfig   `json:"sheets"`
	Cases    CasesConfig    `json:"cases"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// TelegramConfig configures the Telegram bot transport.
type TelegramConfig struct {
	Token string `json:"token"`
}

// SheetsConfig configures the Google Sheets sink destination.
type SheetsConfig struct {
	SpreadsheetID   string `json:"spreadsheet_id"`
	CredentialsFile string `json:"credentials_file"`
	SheetName       string `json:"sheet_name,omitempty"`
	MaxDataRow      int    `json:"max_data_row,omitempty"`
}

// CasesConfig tunes in-memory case grouping behavior.
type CasesConfig struct {
	MaxPending           int `json:"max_pending,omitempty"`
	PendingTTLMinutes    int `json:"pending_ttl_minutes,omitempty"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes,omitempty"`
	GroupingDelaySeconds int `json:"grouping_delay_seconds,omitempty"`
}

// PendingTTL returns the maximum age of an abandoned case.
func (c CasesConfig) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLMinutes) * time.Minute
}

// SweepInterval returns how often the expiry sweeper runs.
func (c CasesConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// GroupingDelay returns the message-grouping debounce window.
func (c CasesConfig) GroupingDelay() time.Duration {
	return time.Duration(c.GroupingDelaySeconds) * time.Second
}

// LoadConfig resolves config.json, unmarshals it, applies environment
// overrides and defaults, and validates required settings.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides injects secret-bearing env settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Telegram.Token = token
	}
	if id := strings.TrimSpace(os.Getenv(envSpreadsheetID)); id != "" {
		cfg.Sheets.SpreadsheetID = id
	}
	if path := strings.TrimSpace(os.Getenv(envCredentialsFile)); path != "" {
		cfg.Sheets.CredentialsFile = path
	}
}

// applyDefaults fills unset tuning knobs with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Cases.MaxPending <= 0 {
		cfg.Cases.MaxPending = defaultMaxPendingCases
	}
	if cfg.Cases.PendingTTLMinutes <= 0 {
		cfg.Cases.PendingTTLMinutes = defaultPendingTTLMinutes
	}
	if cfg.Cases.SweepIntervalMinutes <= 0 {
		cfg.Cases.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
	if cfg.Cases.GroupingDelaySeconds <= 0 {
		cfg.Cases.GroupingDelaySeconds = defaultGroupingDelaySeconds
	}
	if cfg.Sheets.MaxDataRow <= 0 {
		cfg.Sheets.MaxDataRow = defaultMaxDataRow
	}
	if strings.TrimSpace(cfg.Sheets.SheetName) == "" {
		cfg.Sheets.SheetName = defaultSheetName
	}
}

// validate rejects configurations missing required credentials.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or TELEGRAM_BOT_TOKEN)")
	}
	if strings.TrimSpace(cfg.Sheets.SpreadsheetID) == "" {
		return errors.New("sheets.spreadsheet_id is required (or SPREADSHEET_ID)")
	}
	if strings.TrimSpace(cfg.Sheets.CredentialsFile) == "" {
		return errors.New("sheets.credentials_file is required (or GOOGLE_CREDENTIALS_FILE)")
	}

	return nil
}

// findConfigPath resolves the active config file location.
//
// Precedence is TGSHEETS_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("TGSHEETS_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("TGSHEETS_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
