// Package config loads the suite configuration from environment variables and
// CLI flags, validates it, and provides defaults that run the scenarios
// hermetically against the local fixture site.
//
// Browser names are kept as strings here; internal/browserkit parses them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kuitang/couponfollow-e2e/internal/urlutil"
)

const (
	defaultRegion      = "auto"
	defaultArtifactDir = "test-results"
)

// Config holds all suite configuration.
type Config struct {
	// Target site. Empty means "start the fixture site".
	TargetURL string

	// Browser launch
	Headless       bool
	SlowMo         time.Duration
	Browsers       []string // scenario B matrix
	FixtureBrowser string   // browser shared by a test binary
	Timeout        time.Duration
	SkipInstall    bool // PLAYWRIGHT_PREINSTALLED

	// Navigation
	NavAttempts int
	NavBackoff  time.Duration
	NavRPS      float64
	NavBurst    int

	// Diagnostics
	ArtifactDir    string
	ArtifactBucket string // when set, artifacts go to S3 instead of ArtifactDir
	IncludeFailing bool
	MetricsFile    string // E2E_METRICS_FILE; textfile written at the end of a run

	// S3 (only read when ArtifactBucket is set)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Overrides holds CLI flag values that take precedence over the environment.
type Overrides struct {
	TargetURL string
	Headed    bool
	Browsers  string
}

// BindFlags registers --target, --headed and --browsers on fs. The returned
// Overrides is filled in when fs is parsed.
func BindFlags(fs *pflag.FlagSet) *Overrides {
	o := &Overrides{}
	fs.StringVar(&o.TargetURL, "target", "", "Target site URL (overrides E2E_TARGET_URL)")
	fs.BoolVar(&o.Headed, "headed", false, "Run browsers with a visible window")
	fs.StringVar(&o.Browsers, "browsers", "", "Comma-separated browser list (overrides E2E_BROWSERS)")
	return o
}

// Load reads configuration from the environment, applies overrides and validates.
func Load(o Overrides) (*Config, error) {
	cfg := &Config{}

	cfg.TargetURL = urlutil.NormalizeBase(os.Getenv("E2E_TARGET_URL"))
	if o.TargetURL != "" {
		cfg.TargetURL = urlutil.NormalizeBase(o.TargetURL)
	}

	cfg.Headless = parseBoolOrDefault("E2E_HEADLESS", true)
	if o.Headed {
		cfg.Headless = false
	}
	cfg.SlowMo = parseDurationOrDefault("E2E_SLOW_MO", 0)
	cfg.Browsers = splitList(getEnvOrDefault("E2E_BROWSERS", "chrome,firefox,webkit,msedge"))
	if o.Browsers != "" {
		cfg.Browsers = splitList(o.Browsers)
	}
	cfg.FixtureBrowser = strings.ToLower(getEnvOrDefault("E2E_FIXTURE_BROWSER", "chromium"))
	cfg.Timeout = parseDurationOrDefault("E2E_TIMEOUT", 30*time.Second)
	cfg.SkipInstall = os.Getenv("PLAYWRIGHT_PREINSTALLED") == "1"

	cfg.NavAttempts = parseIntOrDefault("E2E_NAV_ATTEMPTS", 1)
	cfg.NavBackoff = parseDurationOrDefault("E2E_NAV_BACKOFF", 500*time.Millisecond)
	cfg.NavRPS = parseFloat64OrDefault("E2E_NAV_RPS", 2)
	cfg.NavBurst = parseIntOrDefault("E2E_NAV_BURST", 4)

	cfg.ArtifactDir = getEnvOrDefault("E2E_ARTIFACT_DIR", defaultArtifactDir)
	cfg.ArtifactBucket = strings.TrimSpace(os.Getenv("E2E_ARTIFACT_BUCKET"))
	cfg.IncludeFailing = parseBoolOrDefault("E2E_INCLUDE_FAILING", false)
	cfg.MetricsFile = strings.TrimSpace(os.Getenv("E2E_METRICS_FILE"))

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if c.TargetURL != "" {
		if !urlutil.IsAbsoluteHTTP(c.TargetURL) {
			errs = append(errs, "E2E_TARGET_URL must be an absolute http(s) URL")
		}
	}
	if len(c.Browsers) == 0 {
		errs = append(errs, "E2E_BROWSERS must name at least one browser")
	}
	if c.FixtureBrowser == "" {
		errs = append(errs, "E2E_FIXTURE_BROWSER must not be empty")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "E2E_SLOW_MO must not be negative")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "E2E_TIMEOUT must be positive")
	}
	if c.NavAttempts < 1 {
		errs = append(errs, "E2E_NAV_ATTEMPTS must be at least 1")
	}
	if c.NavBackoff < 0 {
		errs = append(errs, "E2E_NAV_BACKOFF must not be negative")
	}
	if c.NavRPS <= 0 {
		errs = append(errs, "E2E_NAV_RPS must be positive")
	}
	if c.NavBurst <= 0 {
		errs = append(errs, "E2E_NAV_BURST must be positive")
	}

	if c.ArtifactBucket != "" {
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when E2E_ARTIFACT_BUCKET is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when E2E_ARTIFACT_BUCKET is set")
		}
	} else if c.ArtifactDir == "" {
		errs = append(errs, "E2E_ARTIFACT_DIR must not be empty")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UsesFixtureSite reports whether scenarios target the local fixture site.
func (c *Config) UsesFixtureSite() bool {
	return c.TargetURL == ""
}

// TimeoutMS returns Timeout in the float milliseconds playwright expects.
func (c *Config) TimeoutMS() float64 {
	return float64(c.Timeout.Milliseconds())
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationOrDefault accepts Go durations ("250ms") and bare milliseconds ("100").
func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
