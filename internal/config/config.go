package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MatchThreshold float64
	StandardLabels []string

	CanonicalPath         string
	CanonicalSheet        string
	CanonicalIDColumn     string
	CanonicalToken        string
	CanonicalTimeoutMs    int
	CanonicalRateLimitRPS int

	RunsDir              string
	OutputDir            string
	ExportPayloadColumns []string
	BatchWorkers         int

	DiscoveryRulesFile string
	Discovery          Discovery

	LogLevel  string
	LogFormat string

	HTTPAddr    string
	CORSOrigins []string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	GmailRateLimitRPS int

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	IntakeProvider    string
	IntakeLabel       string
	IntakeIntervalSec int
	IntakeFetchMax    int
	IntakeAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		MatchThreshold: getEnvFloat("MATCH_THRESHOLD", 0.6),
		StandardLabels: getEnvList("STANDARD_LABELS", []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}),

		CanonicalPath:         getEnv("CANONICAL_PATH", filepath.Join(cwd, "data", "MainData.xlsx")),
		CanonicalSheet:        getEnv("CANONICAL_SHEET", ""),
		CanonicalIDColumn:     getEnv("CANONICAL_ID_COLUMN", "Sample ID"),
		CanonicalToken:        getEnv("CANONICAL_TOKEN", ""),
		CanonicalTimeoutMs:    getEnvInt("CANONICAL_TIMEOUT_MS", 30000),
		CanonicalRateLimitRPS: getEnvInt("CANONICAL_RATE_LIMIT_RPS", 2),

		RunsDir:              getEnv("RUNS_DIR", filepath.Join(cwd, "data", "ICP-OES")),
		OutputDir:            getEnv("OUTPUT_DIR", filepath.Join(cwd, "output")),
		ExportPayloadColumns: getEnvList("EXPORT_PAYLOAD_COLUMNS", []string{"Date", "Sample type", "Traverse_new", "Latitude", "Longitude"}),
		BatchWorkers:         getEnvInt("BATCH_WORKERS", 4),

		DiscoveryRulesFile: getEnv("DISCOVERY_RULES_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailRateLimitRPS: getEnvInt("GMAIL_RATE_LIMIT_RPS", 5),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		IntakeProvider:    getEnv("INTAKE_PROVIDER", "imap"),
		IntakeLabel:       getEnv("INTAKE_LABEL", "INBOX"),
		IntakeIntervalSec: getEnvInt("INTAKE_INTERVAL_SEC", 60),
		IntakeFetchMax:    getEnvInt("INTAKE_FETCH_MAX", 20),
		IntakeAutoExport:  getEnvBool("INTAKE_AUTO_EXPORT", true),
	}

	cfg.Discovery = DefaultDiscovery()
	if cfg.DiscoveryRulesFile != "" {
		d, err := LoadDiscovery(cfg.DiscoveryRulesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Discovery = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if math.IsNaN(c.MatchThreshold) || c.MatchThreshold < 0 || c.MatchThreshold >= 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be in [0,1), got %v", c.MatchThreshold))
	}
	if len(c.StandardLabels) == 0 {
		errs = append(errs, errors.New("STANDARD_LABELS must not be empty"))
	}
	if strings.TrimSpace(c.CanonicalIDColumn) == "" {
		errs = append(errs, errors.New("CANONICAL_ID_COLUMN must not be empty"))
	}
	if c.BatchWorkers <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_WORKERS must be positive, got %d", c.BatchWorkers))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
