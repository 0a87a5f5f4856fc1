package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults shared with the CLI flag definitions.
const (
	DefaultAPIURL       = "http://localhost:8080"
	DefaultLookbackDays = 30
	DefaultBatchSize    = 10
	DefaultTestLimit    = 20
)

// Config holds application configuration
type Config struct {
	// Set when a .env file was found and loaded
	EnvFileLoaded bool

	// Logging
	LogJSON  bool
	LogDebug bool

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Optional YAML file overriding the embedded signal tables
	SignalTablesFile string

	Server      ServerConfig
	Scorer      ScorerConfig
	CRM         CRMConfig
	Jobs        JobsConfig
	Coordinator CoordinatorConfig
}

// DatabaseConfig selects and configures the result store backend
type DatabaseConfig struct {
	Driver     string // "sqlite" or "postgres"
	SQLitePath string

	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// ServerConfig holds the scorer HTTP front end settings
type ServerConfig struct {
	Addr            string
	WebsiteTimeout  time.Duration
	WebsiteMaxChars int
	WebsiteCacheTTL time.Duration
	UserAgent       string
	BatchLimit      int
	BatchWorkers    int
}

// ScorerConfig configures the client the jobs use to reach the scorer
type ScorerConfig struct {
	APIURL       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// CRMConfig selects the CRM transport and its credentials
type CRMConfig struct {
	Mode         string // "cli" or "rest"
	SFBinary     string
	TargetOrg    string
	InstanceURL  string
	AccessToken  string
	APIVersion   string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// JobsConfig holds the historical scoring and deal alignment parameters
type JobsConfig struct {
	// Historical scoring
	LookbackDays         int
	BatchSize            int
	MaxContacts          int
	TestLimit            int
	ScoringDelay         time.Duration
	ProgressEveryBatches int
	ScoringInterval      time.Duration // 0 runs a single pass

	// Deal alignment
	PendingLimit          int
	OpportunityWindowDays int
	AnalysisDelay         time.Duration
	PollInterval          time.Duration
	ProgressEveryAnalyses int
}

// CoordinatorConfig holds backtest supervision timings
type CoordinatorConfig struct {
	Job2Warmup     time.Duration
	PollInterval   time.Duration
	StatusInterval time.Duration
	ShutdownGrace  time.Duration
}

// LoadFromEnv loads configuration from environment variables.
// The given files (default ".env") are loaded first when they exist.
func LoadFromEnv(files ...string) *Config {
	loaded := godotenv.Load(files...) == nil

	return &Config{
		EnvFileLoaded: loaded,

		LogJSON:  getEnvBool("LOG_JSON", false),
		LogDebug: getEnvBool("LOG_DEBUG", false),

		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnvOrDefault("DB_DRIVER", "sqlite")),
			SQLitePath: getEnvOrDefault("DB_SQLITE_PATH", "backtest_results.db"),
			Host:       getEnvOrDefault("DB_HOST", "localhost"),
			Port:       getEnvInt("DB_PORT", 5432),
			Name:       getEnvOrDefault("DB_NAME", "lead_backtest"),
			User:       getEnvOrDefault("DB_USER", "leadscore"),
			Password:   getEnvOrDefault("DB_PASSWORD", ""),
			SSLMode:    getEnvOrDefault("DB_SSLMODE", "disable"),
		},

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		SignalTablesFile: getEnvOrDefault("SIGNAL_TABLES_FILE", ""),

		Server: ServerConfig{
			Addr:            getEnvOrDefault("SERVER_ADDR", ":8080"),
			WebsiteTimeout:  getEnvDuration("WEBSITE_TIMEOUT", 15*time.Second),
			WebsiteMaxChars: getEnvInt("WEBSITE_MAX_CHARS", 3000),
			WebsiteCacheTTL: getEnvDuration("WEBSITE_CACHE_TTL", 24*time.Hour),
			UserAgent:       getEnvOrDefault("WEBSITE_USER_AGENT", "Mozilla/5.0 (compatible; LeadQualificationBot/1.0)"),
			BatchLimit:      getEnvInt("QUALIFY_BATCH_LIMIT", 50),
			BatchWorkers:    getEnvInt("QUALIFY_BATCH_WORKERS", 5),
		},

		Scorer: ScorerConfig{
			APIURL:       getEnvOrDefault("SCORER_API_URL", DefaultAPIURL),
			Timeout:      getEnvDuration("SCORER_TIMEOUT", 30*time.Second),
			MaxRetries:   getEnvInt("SCORER_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("SCORER_RETRY_BACKOFF", 5*time.Second),
		},

		CRM: CRMConfig{
			Mode:         strings.ToLower(getEnvOrDefault("CRM_MODE", "cli")),
			SFBinary:     getEnvOrDefault("SF_BINARY", "sf"),
			TargetOrg:    getEnvOrDefault("SF_TARGET_ORG", ""),
			InstanceURL:  getEnvOrDefault("SF_INSTANCE_URL", ""),
			AccessToken:  getEnvOrDefault("SF_ACCESS_TOKEN", ""),
			APIVersion:   getEnvOrDefault("SF_API_VERSION", "v59.0"),
			Timeout:      getEnvDuration("CRM_TIMEOUT", 60*time.Second),
			MaxRetries:   getEnvInt("CRM_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("CRM_RETRY_BACKOFF", 5*time.Second),
		},

		Jobs: JobsConfig{
			LookbackDays:         getEnvInt("JOB_LOOKBACK_DAYS", DefaultLookbackDays),
			BatchSize:            getEnvInt("JOB_BATCH_SIZE", DefaultBatchSize),
			MaxContacts:          getEnvInt("JOB_MAX_CONTACTS", 2000),
			TestLimit:            getEnvInt("JOB_TEST_LIMIT", DefaultTestLimit),
			ScoringDelay:         getEnvDuration("JOB_SCORING_DELAY", time.Second),
			ProgressEveryBatches: getEnvInt("JOB_PROGRESS_EVERY_BATCHES", 5),
			ScoringInterval:      getEnvDuration("JOB_SCORING_INTERVAL", 0),

			PendingLimit:          getEnvInt("JOB_PENDING_LIMIT", 20),
			OpportunityWindowDays: getEnvInt("JOB_OPPORTUNITY_WINDOW_DAYS", 60),
			AnalysisDelay:         getEnvDuration("JOB_ANALYSIS_DELAY", 2*time.Second),
			PollInterval:          getEnvDuration("JOB_POLL_INTERVAL", 60*time.Second),
			ProgressEveryAnalyses: getEnvInt("JOB_PROGRESS_EVERY_ANALYSES", 10),
		},

		Coordinator: CoordinatorConfig{
			Job2Warmup:     getEnvDuration("BACKTEST_JOB2_WARMUP", 2*time.Minute),
			PollInterval:   getEnvDuration("BACKTEST_POLL_INTERVAL", 30*time.Second),
			StatusInterval: getEnvDuration("BACKTEST_STATUS_INTERVAL", 10*time.Minute),
			ShutdownGrace:  getEnvDuration("BACKTEST_SHUTDOWN_GRACE", 30*time.Second),
		},
	}
}

// Validate checks the settings that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", c.Database.Driver)
	}
	switch c.CRM.Mode {
	case "cli":
	case "rest":
		if c.CRM.InstanceURL == "" || c.CRM.AccessToken == "" {
			return fmt.Errorf("CRM_MODE=rest requires SF_INSTANCE_URL and SF_ACCESS_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported CRM_MODE %q (want cli or rest)", c.CRM.Mode)
	}
	if c.Jobs.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Jobs.BatchSize)
	}
	if c.Jobs.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive, got %d", c.Jobs.LookbackDays)
	}
	return nil
}

// RedisEnabled reports whether a Redis host was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err != nil {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
