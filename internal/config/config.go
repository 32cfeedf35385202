package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"

	ArtifactDriverSupabase = "supabase"
	ArtifactDriverMinIO    = "minio"
	ArtifactDriverS3       = "s3"
	ArtifactDriverMemory   = "memory"
)

type Config struct {
	// Server
	Port               string   `envconfig:"PORT" default:"8080"`
	Environment        string   `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"info"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	MaxUploadBytes     int64    `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`

	// Session validation
	AuthRequired  bool   `envconfig:"AUTH_REQUIRED" default:"true"`
	AuthJWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	AuthIssuer    string `envconfig:"AUTH_ISSUER"`

	// Record store
	StoreDriver   string `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"neurosphere"`

	// Artifact storage
	ArtifactDriver        string `envconfig:"ARTIFACT_DRIVER" default:"memory"`
	SupabaseURL           string `envconfig:"SUPABASE_URL"`
	SupabaseKey           string `envconfig:"SUPABASE_KEY"`
	SupabaseStorageBucket string `envconfig:"SUPABASE_STORAGE_BUCKET" default:"scans"`
	SupabaseEventsTable   string `envconfig:"SUPABASE_EVENTS_TABLE" default:"scan_events"`
	MinIOEndpoint         string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinIOAccessKey        string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey        string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket           string `envconfig:"MINIO_BUCKET" default:"medical-imaging"`
	MinIOUseSSL           bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	S3Bucket              string `envconfig:"S3_BUCKET"`
	S3Region              string `envconfig:"S3_REGION" default:"us-east-1"`

	// Classification model server
	ClassifierURL     string        `envconfig:"CLASSIFIER_URL"`
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT" default:"60s"`

	// Lifecycle
	WorkerCount             int           `envconfig:"WORKER_COUNT" default:"4"`
	QueueSize               int           `envconfig:"QUEUE_SIZE" default:"128"`
	SettleDelay             time.Duration `envconfig:"SETTLE_DELAY" default:"0s"`
	EstimatedProcessingTime time.Duration `envconfig:"ESTIMATED_PROCESSING_TIME" default:"5m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthRequired && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_REQUIRED is true")
	}
	if c.ClassifierURL == "" {
		return fmt.Errorf("CLASSIFIER_URL is required")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ArtifactDriver {
	case ArtifactDriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for supabase storage")
		}
	case ArtifactDriverMinIO:
		if c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
	case ArtifactDriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
	case ArtifactDriverMemory:
	default:
		return fmt.Errorf("unknown ARTIFACT_DRIVER %q", c.ArtifactDriver)
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be at least 1")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// SupabaseConfigured reports whether supabase credentials are present, independent
// of the artifact driver. Realtime events use them when available.
func (c *Config) SupabaseConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}
