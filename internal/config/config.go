package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName       string
	CoreDatabaseURL   string
	SourceDatabaseURL string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string
	DisplayTimezone   string

	SendAPIURL        string
	SendAPIKey        string
	SendRatePerSecond float64
	SendTimeout       time.Duration

	// CronSecret authenticates the external timer on the dispatch endpoint.
	CronSecret string

	DispatchWorkers   int
	DispatchBatchSize int
	QueryTimeout      time.Duration
	// StaleRunningAfter fails running jobs that started longer ago than this.
	// Zero disables the check.
	StaleRunningAfter time.Duration

	FormatLocale   string
	CurrencySuffix string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "outreach"),
		CoreDatabaseURL:   getEnv("CORE_DATABASE_URL", ""),
		SourceDatabaseURL: getEnv("SOURCE_DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DisplayTimezone:   getEnv("DISPLAY_TIMEZONE", "Asia/Seoul"),
		SendAPIURL:        getEnv("SEND_API_URL", ""),
		SendAPIKey:        getEnv("SEND_API_KEY", ""),
		CronSecret:        getEnv("CRON_SECRET", ""),
		FormatLocale:      getEnv("FORMAT_LOCALE", "ko"),
		CurrencySuffix:    getEnv("CURRENCY_SUFFIX", "원"),
	}

	var err error
	if cfg.SendRatePerSecond, err = getEnvFloat("SEND_RATE_PER_SECOND", 20); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getEnvDuration("SEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DispatchWorkers, err = getEnvInt("DISPATCH_WORKERS", 8); err != nil {
		return nil, err
	}
	if cfg.DispatchBatchSize, err = getEnvInt("DISPATCH_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = getEnvDuration("QUERY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StaleRunningAfter, err = getEnvDuration("STALE_RUNNING_AFTER", 60*time.Minute); err != nil {
		return nil, err
	}

	if cfg.SourceDatabaseURL == "" {
		cfg.SourceDatabaseURL = cfg.CoreDatabaseURL
	}

	return cfg, nil
}

// Validate checks that the fields required by the given role are present.
// Roles: "api", "dispatch", "migrate".
func (c *Config) Validate(role string) error {
	var missing []string
	if c.CoreDatabaseURL == "" {
		missing = append(missing, "CORE_DATABASE_URL")
	}

	switch role {
	case "api":
		if c.CronSecret == "" {
			missing = append(missing, "CRON_SECRET")
		}
		if c.SendAPIURL == "" {
			missing = append(missing, "SEND_API_URL")
		}
	case "dispatch":
		if c.SendAPIURL == "" {
			missing = append(missing, "SEND_API_URL")
		}
	case "migrate":
	default:
		return fmt.Errorf("unknown config role %q", role)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1")
	}
	if c.DispatchBatchSize < 1 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the display timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", c.DisplayTimezone, err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
