package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values come from the environment, an optional config.yaml, and defaults,
// in that order of precedence.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Storage
	StoreDriver   string
	SQLitePath    string
	RedisURL      string
	MongoURI      string
	MongoDatabase string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Portal
	PortalSessionTTL        time.Duration
	PortalAttemptsPerMinute int
	PortalBaseURL           string

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	UseSupabase        bool
	OwnerID            string

	// Document blobs
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string

	// HTTP surface
	CORSAllowedOrigins []string

	// Scheduling
	RecurringInvoiceSchedule string
}

var defaults = map[string]any{
	"PORT":                        8080,
	"LOG_LEVEL":                   "info",
	"STORE_DRIVER":                "sqlite",
	"STORE_SQLITE_PATH":           "coachspace.db",
	"STORE_REDIS_URL":             "redis://localhost:6379/0",
	"STORE_MONGO_URI":             "mongodb://localhost:27017",
	"STORE_MONGO_DATABASE":        "coachspace",
	"HTTP_TIMEOUT":                10 * time.Second,
	"MAX_RETRIES":                 3,
	"INITIAL_BACKOFF":             100 * time.Millisecond,
	"MAX_CONCURRENCY":             8,
	"PORTAL_SESSION_TTL":          2 * time.Hour,
	"PORTAL_ATTEMPTS_PER_MINUTE":  5,
	"PORTAL_BASE_URL":             "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"SUPABASE_URL":                "",
	"SUPABASE_ANON_KEY":           "",
	"SUPABASE_SERVICE_ROLE_KEY":   "",
	"SUPABASE_JWT_SECRET":         "",
	"USE_SUPABASE":                false,
	"OWNER_ID":                    "",
	"S3_ENDPOINT":                 "",
	"S3_REGION":                   "eu-central-1",
	"S3_ACCESS_KEY_ID":            "",
	"S3_SECRET_ACCESS_KEY":        "",
	"S3_BUCKET_NAME":              "",
	"CORS_ALLOWED_ORIGINS":        []string{"http://localhost:5173"},
	"RECURRING_INVOICE_SCHEDULE":  "@daily",
}

// Load reads configuration. dir is searched for config.yaml; a missing
// file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		StoreDriver:   v.GetString("STORE_DRIVER"),
		SQLitePath:    v.GetString("STORE_SQLITE_PATH"),
		RedisURL:      v.GetString("STORE_REDIS_URL"),
		MongoURI:      v.GetString("STORE_MONGO_URI"),
		MongoDatabase: v.GetString("STORE_MONGO_DATABASE"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		PortalSessionTTL:        v.GetDuration("PORTAL_SESSION_TTL"),
		PortalAttemptsPerMinute: v.GetInt("PORTAL_ATTEMPTS_PER_MINUTE"),
		PortalBaseURL:           v.GetString("PORTAL_BASE_URL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		SupabaseURL:        v.GetString("SUPABASE_URL"),
		SupabaseAnonKey:    v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:  v.GetString("SUPABASE_JWT_SECRET"),
		UseSupabase:        v.GetBool("USE_SUPABASE"),
		OwnerID:            v.GetString("OWNER_ID"),

		S3Endpoint:        v.GetString("S3_ENDPOINT"),
		S3Region:          v.GetString("S3_REGION"),
		S3AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		S3Bucket:          v.GetString("S3_BUCKET_NAME"),

		CORSAllowedOrigins: splitList(v.GetStringSlice("CORS_ALLOWED_ORIGINS")),

		RecurringInvoiceSchedule: v.GetString("RECURRING_INVOICE_SCHEDULE"),
	}, nil
}

// SupabaseEnabled reports whether the hosted backend should be wired.
func (c *Config) SupabaseEnabled() bool {
	return c.UseSupabase && c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// BlobEnabled reports whether document bodies go to object storage.
func (c *Config) BlobEnabled() bool {
	return c.S3Bucket != ""
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
