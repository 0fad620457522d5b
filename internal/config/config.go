package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Extraction ExtractionConfig
	Scoring    ScoringConfig
	Database   DatabaseConfig
	Vibes      VibesConfig
	Web        WebConfig
	Thresholds ThresholdsConfig
}

type ExtractionConfig struct {
	DetectURL          string        // face detection service (defaults to http://localhost:3001)
	EmbedURL           string        // face embedding service (defaults to http://localhost:3002)
	Timeout            time.Duration // per-attempt timeout
	MaxAttempts        int           // attempts against the real backend before falling back
	BackoffBase        time.Duration // exponential backoff base between attempts
	UnhealthyThreshold int           // consecutive failures before the backend is considered down
	ProbeInterval      time.Duration // background health probe interval (0 disables probing)
}

type ScoringConfig struct {
	WindowDays          int  // eligibility window for resubmission
	RequireVerification bool // enforce nftVerified + identityVerified flags
	MaxImageBytes       int  // maximum accepted image payload size
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (empty means in-memory store)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type VibesConfig struct {
	Provider     string // "static" (default), "openai" or "gemini"
	OpenAIToken  string
	GeminiAPIKey string
}

type WebConfig struct {
	Host string
	Port int
}

// ThresholdsConfig holds the quality floors applied by the feature validator.
// Defaults ship embedded; THRESHOLDS_PATH points at a YAML file overriding them.
type ThresholdsConfig struct {
	Quality    float64 `yaml:"quality"`
	Frontality float64 `yaml:"frontality"`
	Symmetry   float64 `yaml:"symmetry"`
	Resolution float64 `yaml:"resolution"`
	Confidence float64 `yaml:"confidence"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("1", "true", "yes" count as true).
func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}

// envDurationMS reads an environment variable as a millisecond count.
// An explicit zero is respected so interval-style knobs can be disabled;
// unset, negative or invalid values fall back to the default.
func envDurationMS(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Millisecond
	}
	return defaultVal
}

func loadThresholds() ThresholdsConfig {
	var t ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &t); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	if path := os.Getenv("THRESHOLDS_PATH"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
		if err != nil {
			panic(fmt.Sprintf("failed to read THRESHOLDS_PATH %s: %v", path, err))
		}
		if err := yaml.Unmarshal(data, &t); err != nil {
			panic(fmt.Sprintf("failed to parse THRESHOLDS_PATH %s: %v", path, err))
		}
	}

	return t
}

func Load() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			DetectURL:          os.Getenv("EXTRACTION_DETECT_URL"),
			EmbedURL:           os.Getenv("EXTRACTION_EMBED_URL"),
			Timeout:            envDurationMS("EXTRACTION_TIMEOUT_MS", 10*time.Second),
			MaxAttempts:        envInt("EXTRACTION_MAX_ATTEMPTS", 3),
			BackoffBase:        envDurationMS("EXTRACTION_BACKOFF_MS", 200*time.Millisecond),
			UnhealthyThreshold: envInt("EXTRACTION_UNHEALTHY_THRESHOLD", 3),
			ProbeInterval:      envDurationMS("EXTRACTION_PROBE_INTERVAL_MS", 30*time.Second),
		},
		Scoring: ScoringConfig{
			WindowDays:          envInt("SCORING_WINDOW_DAYS", 30),
			RequireVerification: envBool("SCORING_REQUIRE_VERIFICATION"),
			MaxImageBytes:       envInt("SCORING_MAX_IMAGE_BYTES", 2*1024*1024),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Vibes: VibesConfig{
			Provider:     os.Getenv("VIBE_PROVIDER"),
			OpenAIToken:  os.Getenv("OPENAI_TOKEN"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Web: WebConfig{
			Host: os.Getenv("WEB_HOST"),
			Port: envInt("WEB_PORT", 8080),
		},
		Thresholds: loadThresholds(),
	}
}

// Window returns the eligibility window as a duration.
func (c *ScoringConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}
