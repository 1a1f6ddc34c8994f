package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/upb/ak-van-sync/utils"
)

// Config represents the complete job configuration
type Config struct {
	Warehouse     DatabaseConfig
	Schemas       SchemaConfig
	VAN           VANConfig
	Regions       map[string]RegionConfig // region code -> VAN credentials
	EventTypes    map[string]int          // VAN event type name -> AK campaign id
	Export        ExportConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
	Environment   string
}

// DatabaseConfig holds warehouse connection configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// SchemaConfig names the warehouse schemas the pipelines read and write
type SchemaConfig struct {
	AK  string `validate:"required"`
	VAN string `validate:"required"`
}

// VANConfig holds settings shared by every regional VAN client
type VANConfig struct {
	BaseURL           string        `validate:"required,url"`
	AppName           string        `validate:"required"`
	Timeout           time.Duration `validate:"gt=0"`
	MaxRetries        int           `validate:"gte=0,lte=10"`
	RetryDelay        time.Duration
	RequestsPerSecond float64 `validate:"gt=0"`
}

// RegionConfig holds the VAN credentials for one region
type RegionConfig struct {
	APIKey  string `yaml:"api_key"`
	AppName string `yaml:"app_name"` // Optional: overrides VAN_API_APP for this region
}

// ExportConfig holds export pipeline settings
type ExportConfig struct {
	Lookback time.Duration
}

// SchedulerConfig holds cron settings for the schedule command
type SchedulerConfig struct {
	ImportSchedule string
	ExportSchedule string
	HTTPAddr       string
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	LogFile        string // Optional: rotated file output in addition to stderr
	PushgatewayURL string // Optional: one-shot runs push metrics here
}

// fileConfig is the shape of the optional YAML mapping file
type fileConfig struct {
	Regions    map[string]RegionConfig `yaml:"regions"`
	EventTypes map[string]int          `yaml:"event_types"`
}

// New creates a new Config instance by loading environment variables
// and the optional YAML mapping file named by SYNC_CONFIG_FILE.
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Warehouse:   loadDatabaseConfig(),
		Schemas: SchemaConfig{
			AK:  getEnv("DB_AK_SCHEMA", "ak"),
			VAN: getEnv("DB_VAN_SCHEMA", "ngpvan"),
		},
		VAN: VANConfig{
			BaseURL:           getEnv("VAN_BASE_URL", "https://api.securevan.com/v4"),
			AppName:           getEnv("VAN_API_APP", ""),
			Timeout:           getEnvAsDuration("VAN_TIMEOUT", 30*time.Second),
			MaxRetries:        getEnvAsInt("VAN_MAX_RETRIES", 3),
			RetryDelay:        getEnvAsDuration("VAN_RETRY_DELAY", time.Second),
			RequestsPerSecond: getEnvAsFloat("VAN_REQUESTS_PER_SECOND", 5),
		},
		Regions:    make(map[string]RegionConfig),
		EventTypes: make(map[string]int),
		Export: ExportConfig{
			Lookback: getEnvAsDuration("EXPORT_LOOKBACK", 24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			ImportSchedule: getEnv("IMPORT_SCHEDULE", "*/30 * * * *"),
			ExportSchedule: getEnv("EXPORT_SCHEDULE", "0 4 * * *"),
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			LogFile:        getEnv("LOG_FILE", ""),
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		},
	}

	keys, err := parsePairs(getEnv("VAN_API_KEYS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid VAN_API_KEYS: %w", err)
	}
	for region, key := range keys {
		cfg.Regions[strings.ToUpper(region)] = RegionConfig{APIKey: key}
	}

	types, err := parsePairs(getEnv("EVENT_TYPE_CAMPAIGN_MAP", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_TYPE_CAMPAIGN_MAP: %w", err)
	}
	for name, raw := range types {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid campaign id %q for event type %q", raw, name)
		}
		cfg.EventTypes[name] = id
	}

	if path := getEnv("SYNC_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile merges the YAML mapping file over the env-provided values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for region, rc := range fc.Regions {
		c.Regions[strings.ToUpper(region)] = rc
	}
	for name, id := range fc.EventTypes {
		c.EventTypes[name] = id
	}
	return nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Warehouse.ConnectionString == "" && c.Warehouse.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Warehouse.ConnectionString == "" {
		if c.Warehouse.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Warehouse.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if err := utils.ValidateStruct(c.Schemas); err != nil {
		return fmt.Errorf("schemas: %w", err)
	}
	if err := utils.ValidateStruct(c.VAN); err != nil {
		return fmt.Errorf("van: %w", err)
	}

	// The mapping must be usable in both directions
	if len(c.EventTypes) == 0 {
		return fmt.Errorf("at least one event type mapping is required")
	}
	seen := make(map[int]string, len(c.EventTypes))
	for name, id := range c.EventTypes {
		if other, ok := seen[id]; ok {
			return fmt.Errorf("campaign id %d is mapped to both %q and %q", id, other, name)
		}
		seen[id] = name
	}

	for _, region := range c.RegionCodes() {
		if c.Regions[region].APIKey == "" {
			return fmt.Errorf("region %s has an empty API key", region)
		}
	}

	if c.Export.Lookback <= 0 {
		return fmt.Errorf("export lookback must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// RegionCodes returns the configured region codes in sorted order
func (c *Config) RegionCodes() []string {
	codes := make([]string, 0, len(c.Regions))
	for code := range c.Regions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 2),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5439),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PWD", ""),
		Database:        getEnv("DB_NAME", "warehouse"),
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 2),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 1),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// Helper functions

// parsePairs parses "a=1,b=2" into a map. Blank input yields an empty map.
func parsePairs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("malformed entry %q, want key=value", part)
		}
		out[k] = v
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
