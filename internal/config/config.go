package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration, loaded from the environment.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Clients  ClientsConfig
	Workflow WorkflowConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig controls the Postgres pool.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

// NATSConfig controls the notification event publisher. An empty URL
// disables NATS publishing (inbox rows are still written).
type NATSConfig struct {
	URL string
}

// ClientsConfig holds base URLs of collaborating platform services.
type ClientsConfig struct {
	IdentityURL string
	StorageURL  string
}

// WorkflowConfig holds engine-level settings.
type WorkflowConfig struct {
	// DataFile optionally points at a YAML file overriding the built-in
	// step templates and partner-institution routing table.
	DataFile string
	// TokenTTL is the validity window of confirmation tokens.
	TokenTTL time.Duration
	// HomeInstitution is the institution code of this portal; content it
	// owns is handled in the internal queue.
	HomeInstitution string
	// ContactURL is the fallback redirect for content owned by
	// institutions absent from the partner table.
	ContactURL string
	// PublicBaseURL prefixes confirmation links sent to external parties.
	PublicBaseURL string
}

// Load reads configuration from the environment with local-dev defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-legal-deposit"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8086),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Database:    getEnv("DB_NAME", "legal_deposit"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
			HealthCheck: getEnvDuration("DB_HEALTHCHECK_PERIOD", time.Minute),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Clients: ClientsConfig{
			IdentityURL: getEnv("IDENTITY_URL", "http://localhost:8081"),
			StorageURL:  getEnv("STORAGE_URL", "http://localhost:8082"),
		},
		Workflow: WorkflowConfig{
			DataFile:        getEnv("WORKFLOW_DATA_FILE", ""),
			TokenTTL:        getEnvDuration("CONFIRMATION_TOKEN_TTL", 7*24*time.Hour),
			HomeInstitution: getEnv("HOME_INSTITUTION", "BN"),
			ContactURL:      getEnv("CONTACT_URL", "https://portal.example.org/contact"),
			PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "https://portal.example.org"),
		},
	}

	if cfg.Workflow.TokenTTL <= 0 {
		return nil, fmt.Errorf("CONFIRMATION_TOKEN_TTL must be positive")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
