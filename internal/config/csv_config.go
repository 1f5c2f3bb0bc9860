package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tablerag/tablerag-client/internal/constants"
	"github.com/tablerag/tablerag-client/internal/models"
)

// Config represents the tablerag client configuration
type Config struct {
	// API settings
	APIBaseURL string

	// Polling
	PollIntervalMS        int
	PollMaxAttempts       int // 0 = unbounded
	DataPollTimeoutS      int // 0 = unbounded
	CleanupPollTimeoutS   int
	EmbeddingsPollTimeout int // seconds
	StatusRatePerSec      float64

	// Retry settings for status reads (submissions are never retried)
	MaxRetries int

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Server-side directory defaults sent with requests when flags are empty
	DefaultExcelDir string
	DefaultDocDir   string

	// S3 upload sources
	S3Region          string
	S3Endpoint        string // for S3-compatible stores; enables path-style addressing
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		APIBaseURL:            constants.DefaultAPIBaseURL,
		PollIntervalMS:        int(constants.DefaultPollInterval / time.Millisecond),
		DataPollTimeoutS:      int(constants.DataPollTimeout / time.Second),
		CleanupPollTimeoutS:   int(constants.CleanupPollTimeout / time.Second),
		EmbeddingsPollTimeout: int(constants.EmbeddingsPollTimeout / time.Second),
		StatusRatePerSec:      constants.StatusReadRatePerSec,
		MaxRetries:            constants.DefaultMaxRetries,
		ProxyMode:             "no-proxy",
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue
		}
		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])
		if err := cfg.Set(key, value); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("ignoring config entry")
		}
	}

	return cfg, nil
}

// Set assigns one key. Unknown keys and malformed numbers are reported as errors.
func (c *Config) Set(key, value string) error {
	atoi := func(dst *int) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = v
		return nil
	}

	switch key {
	case "api_base_url":
		c.APIBaseURL = value
	case "poll_interval_ms":
		return atoi(&c.PollIntervalMS)
	case "poll_max_attempts":
		return atoi(&c.PollMaxAttempts)
	case "data_poll_timeout_s":
		return atoi(&c.DataPollTimeoutS)
	case "cleanup_poll_timeout_s":
		return atoi(&c.CleanupPollTimeoutS)
	case "embeddings_poll_timeout_s":
		return atoi(&c.EmbeddingsPollTimeout)
	case "status_rate_per_sec":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		c.StatusRatePerSec = v
	case "max_retries":
		return atoi(&c.MaxRetries)
	case "proxy_mode":
		c.ProxyMode = value
	case "proxy_host":
		c.ProxyHost = value
	case "proxy_port":
		return atoi(&c.ProxyPort)
	case "proxy_user":
		c.ProxyUser = value
	case "proxy_password":
		// Passwords are entered at runtime, never read from disk
		if value != "" {
			log.Warn().Msg("proxy_password in config file is ignored; you will be prompted at runtime")
		}
	case "no_proxy":
		c.NoProxy = value
	case "proxy_warmup":
		c.ProxyWarmup = strings.ToLower(value) == "true" || value == "1"
	case "default_excel_dir":
		c.DefaultExcelDir = value
	case "default_doc_dir":
		c.DefaultDocDir = value
	case "s3_region":
		c.S3Region = value
	case "s3_endpoint":
		c.S3Endpoint = value
	case "s3_access_key_id":
		c.S3AccessKeyID = value
	case "s3_secret_access_key":
		c.S3SecretAccessKey = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Records returns the persisted key/value pairs in file order.
// proxy_password is never included.
func (c *Config) Records() [][]string {
	return [][]string{
		{"api_base_url", c.APIBaseURL},
		{"poll_interval_ms", strconv.Itoa(c.PollIntervalMS)},
		{"poll_max_attempts", strconv.Itoa(c.PollMaxAttempts)},
		{"data_poll_timeout_s", strconv.Itoa(c.DataPollTimeoutS)},
		{"cleanup_poll_timeout_s", strconv.Itoa(c.CleanupPollTimeoutS)},
		{"embeddings_poll_timeout_s", strconv.Itoa(c.EmbeddingsPollTimeout)},
		{"status_rate_per_sec", strconv.FormatFloat(c.StatusRatePerSec, 'f', -1, 64)},
		{"max_retries", strconv.Itoa(c.MaxRetries)},
		{"proxy_mode", c.ProxyMode},
		{"proxy_host", c.ProxyHost},
		{"proxy_port", strconv.Itoa(c.ProxyPort)},
		{"proxy_user", c.ProxyUser},
		{"no_proxy", c.NoProxy},
		{"proxy_warmup", strconv.FormatBool(c.ProxyWarmup)},
		{"default_excel_dir", c.DefaultExcelDir},
		{"default_doc_dir", c.DefaultDocDir},
		{"s3_region", c.S3Region},
		{"s3_endpoint", c.S3Endpoint},
		{"s3_access_key_id", c.S3AccessKeyID},
		{"s3_secret_access_key", c.S3SecretAccessKey},
	}
}

// SaveConfigCSV saves configuration to a CSV file
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, record := range cfg.Records() {
		// Only write non-empty values to keep file clean
		if record[1] == "" || record[1] == "false" {
			continue
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadDotEnv reads a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// MergeWithFlags merges config with command-line flags and environment variables
// Priority: flags > environment > config file > defaults
func (c *Config) MergeWithFlags(apiBaseURL, proxyMode, proxyHost string, proxyPort int) {
	if envURL := os.Getenv(constants.EnvAPIURL); envURL != "" {
		c.APIBaseURL = envURL
	}
	if envInterval := os.Getenv(constants.EnvPollIntervalMS); envInterval != "" {
		if v, err := strconv.Atoi(envInterval); err == nil {
			c.PollIntervalMS = v
		} else {
			log.Warn().Str("value", envInterval).Msgf("ignoring malformed %s", constants.EnvPollIntervalMS)
		}
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" {
		c.parseProxyURL(envProxy)
	}

	// Command-line flags (highest priority)
	if apiBaseURL != "" {
		c.APIBaseURL = apiBaseURL
	}
	if proxyMode != "" {
		c.ProxyMode = proxyMode
	}
	if proxyHost != "" {
		c.ProxyHost = proxyHost
	}
	if proxyPort > 0 {
		c.ProxyPort = proxyPort
	}

	c.APIBaseURL = strings.TrimSuffix(c.APIBaseURL, "/")
	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http") {
		c.APIBaseURL = "http://" + c.APIBaseURL
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(strings.TrimSuffix(parts[1], "/")); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && (c.ProxyMode == "no-proxy" || c.ProxyMode == "") {
		c.ProxyMode = "system"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required (set api_base_url, %s or --api-url)", constants.EnvAPIURL)
	}
	if c.PollInterval() < constants.MinPollInterval {
		return fmt.Errorf("poll_interval_ms must be at least %d", constants.MinPollInterval.Milliseconds())
	}
	if c.PollMaxAttempts < 0 {
		return fmt.Errorf("poll_max_attempts must not be negative")
	}
	if c.DataPollTimeoutS < 0 || c.CleanupPollTimeoutS < 0 || c.EmbeddingsPollTimeout < 0 {
		return fmt.Errorf("poll timeouts must not be negative")
	}
	if c.StatusRatePerSec <= 0 {
		return fmt.Errorf("status_rate_per_sec must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("unsupported proxy_mode %q", c.ProxyMode)
	}
	return nil
}

// PollInterval returns the configured delay between status reads.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// PollTimeouts returns the per-kind wait bound. A zero entry means unbounded.
func (c *Config) PollTimeouts() map[models.Kind]time.Duration {
	return map[models.Kind]time.Duration{
		models.KindData:       time.Duration(c.DataPollTimeoutS) * time.Second,
		models.KindCleanup:    time.Duration(c.CleanupPollTimeoutS) * time.Second,
		models.KindEmbeddings: time.Duration(c.EmbeddingsPollTimeout) * time.Second,
	}
}

// getConfigDir returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\tablerag
//   - Unix: ~/.config/tablerag
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", constants.AppName)
	}
	return ""
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	configDir := getConfigDir()
	if configDir == "" {
		return "config.csv"
	}
	return filepath.Join(configDir, "config.csv")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	configDir := getConfigDir()
	if configDir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	return os.MkdirAll(configDir, 0700)
}
