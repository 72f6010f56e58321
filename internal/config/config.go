// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables
// (.env file) and overriding select fields from a datastore-backed active
// viability-config row. Datastore values take precedence over environment
// variables, mirroring the teacher's settings-database-overrides-env
// pattern.
//
// Configuration loading order:
// 1. Load from .env file (if present)
// 2. Load from environment variables
// 3. ApplyActiveViabilityConfig (takes precedence for the fields it carries)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration for the syncd process.
type Config struct {
	DataDir string // base directory for the sqlite store and cache file, always absolute

	UpstreamAPIKey  string // Authorization header value for the upstream analytics API
	UpstreamBaseURL string
	DefaultWallets  []string // default set of coldkey addresses tracked when none is supplied per-call

	DatabasePath string
	CachePath    string

	RateLimitPerMinute int

	RefreshTierInterval time.Duration
	FullTierInterval    time.Duration
	DeepTierHour        int // wall-clock hour (0-23) the deep tier's daily cron fires at

	RetryCap  time.Duration
	RetryBase time.Duration

	StaleDataThreshold time.Duration

	ReconciliationAbsoluteToleranceTAO float64
	ReconciliationRelativeTolerancePct float64

	ViabilityWeights    ViabilityWeights
	ViabilityThresholds ViabilityThresholds

	RegimeThresholds  RegimeThresholds
	RegimePersistence RegimePersistence

	PartialFailureMinRecords int

	LogLevel string
	DevMode  bool

	Backup BackupConfig
}

// ViabilityWeights are the percentile-scoring component weights for §4.8;
// must sum to 1.0 within 0.001 (checked by Config.Validate).
type ViabilityWeights struct {
	Liquidity  float64
	HolderBase float64
	Emission   float64
	Flow       float64
	Age        float64
	Validator  float64
}

// ViabilityThresholds carries the hard-fail gate cutoffs for §4.8.
type ViabilityThresholds struct {
	MinPoolTAOReserve float64
	MinHolderCount    int
	MaxOwnerTake      float64
	MinAgeDays        int
}

// RegimeThresholds carries the multi-horizon flow cutoffs for §4.7.
type RegimeThresholds struct {
	RiskOnFlow1d   float64
	RiskOffFlow1d  float64
	QuarantineFlow float64
	DeadFlow7d     float64
}

// RegimePersistence is the number of consecutive observation days a
// candidate regime must hold before it commits (anti-whipsaw, §4.7).
type RegimePersistence struct {
	Days map[string]int // keyed by candidate regime name
}

// BackupConfig configures the offsite snapshot uploader.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Interval        time.Duration
	Retain          int
}

// Load reads configuration from environment variables.
//
// dataDirOverride, if non-empty, takes priority over TREASURY_DATA_DIR and
// the hardcoded default.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("TREASURY_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg := &Config{
		DataDir: absDataDir,

		UpstreamAPIKey:  getEnv("UPSTREAM_API_KEY", ""),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "https://api.taostats.io"),
		DefaultWallets:  getEnvAsList("DEFAULT_WALLETS", nil),

		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(absDataDir, "treasury.db")),
		CachePath:    getEnv("CACHE_PATH", filepath.Join(absDataDir, "cache.db")),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),

		RefreshTierInterval: getEnvAsDuration("REFRESH_TIER_INTERVAL", 5*time.Minute),
		FullTierInterval:    getEnvAsDuration("FULL_TIER_INTERVAL", 60*time.Minute),
		DeepTierHour:        getEnvAsInt("DEEP_TIER_HOUR", 2),

		RetryCap:  getEnvAsDuration("RETRY_CAP", 30*time.Second),
		RetryBase: getEnvAsDuration("RETRY_BASE", 500*time.Millisecond),

		StaleDataThreshold: getEnvAsDuration("STALE_DATA_THRESHOLD", 30*time.Minute),

		ReconciliationAbsoluteToleranceTAO: getEnvAsFloat("RECONCILIATION_ABS_TOLERANCE_TAO", 0.01),
		ReconciliationRelativeTolerancePct: getEnvAsFloat("RECONCILIATION_REL_TOLERANCE_PCT", 0.005),

		ViabilityWeights: ViabilityWeights{
			Liquidity:  getEnvAsFloat("VIABILITY_WEIGHT_LIQUIDITY", 0.25),
			HolderBase: getEnvAsFloat("VIABILITY_WEIGHT_HOLDER_BASE", 0.15),
			Emission:   getEnvAsFloat("VIABILITY_WEIGHT_EMISSION", 0.15),
			Flow:       getEnvAsFloat("VIABILITY_WEIGHT_FLOW", 0.25),
			Age:        getEnvAsFloat("VIABILITY_WEIGHT_AGE", 0.10),
			Validator:  getEnvAsFloat("VIABILITY_WEIGHT_VALIDATOR", 0.10),
		},
		ViabilityThresholds: ViabilityThresholds{
			MinPoolTAOReserve: getEnvAsFloat("VIABILITY_MIN_POOL_TAO", 100),
			MinHolderCount:    getEnvAsInt("VIABILITY_MIN_HOLDER_COUNT", 50),
			MaxOwnerTake:      getEnvAsFloat("VIABILITY_MAX_OWNER_TAKE", 0.5),
			MinAgeDays:        getEnvAsInt("VIABILITY_MIN_AGE_DAYS", 14),
		},

		RegimeThresholds: RegimeThresholds{
			RiskOnFlow1d:   getEnvAsFloat("REGIME_RISK_ON_FLOW_1D", 0.05),
			RiskOffFlow1d:  getEnvAsFloat("REGIME_RISK_OFF_FLOW_1D", -0.05),
			QuarantineFlow: getEnvAsFloat("REGIME_QUARANTINE_FLOW", -0.15),
			DeadFlow7d:     getEnvAsFloat("REGIME_DEAD_FLOW_7D", -0.40),
		},
		RegimePersistence: RegimePersistence{
			Days: map[string]int{
				"risk_on":    getEnvAsInt("REGIME_PERSIST_RISK_ON_DAYS", 2),
				"neutral":    getEnvAsInt("REGIME_PERSIST_NEUTRAL_DAYS", 1),
				"risk_off":   getEnvAsInt("REGIME_PERSIST_RISK_OFF_DAYS", 2),
				"quarantine": getEnvAsInt("REGIME_PERSIST_QUARANTINE_DAYS", 1),
				"dead":       getEnvAsInt("REGIME_PERSIST_DEAD_DAYS", 3),
			},
		},

		PartialFailureMinRecords: getEnvAsInt("PARTIAL_FAILURE_MIN_RECORDS", 1),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			Interval:        getEnvAsDuration("BACKUP_INTERVAL", 24*time.Hour),
			Retain:          getEnvAsInt("BACKUP_RETAIN", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ActiveViabilityConfigRow is the shape read from the datastore's
// viability_config table's single active row, per §4.8.
type ActiveViabilityConfigRow struct {
	Weights    ViabilityWeights
	Thresholds ViabilityThresholds
}

// ApplyActiveViabilityConfig overrides the env-derived viability weights
// and thresholds with the datastore's active configuration row, when one
// exists. A nil row leaves the env-derived defaults in place.
func (c *Config) ApplyActiveViabilityConfig(row *ActiveViabilityConfigRow) {
	if row == nil {
		return
	}
	c.ViabilityWeights = row.Weights
	c.ViabilityThresholds = row.Thresholds
}

// Validate checks invariants that would make the service unable to start.
func (c *Config) Validate() error {
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.RetryCap < c.RetryBase {
		return fmt.Errorf("RETRY_CAP must be >= RETRY_BASE")
	}
	sum := c.ViabilityWeights.Liquidity + c.ViabilityWeights.HolderBase +
		c.ViabilityWeights.Emission + c.ViabilityWeights.Flow +
		c.ViabilityWeights.Age + c.ViabilityWeights.Validator
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("viability weights must sum to 1.0, got %f", sum)
	}
	return nil
}

// ==========================================
// Helper functions
// ==========================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			part := value[start:i]
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
