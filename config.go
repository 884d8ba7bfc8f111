package breeze

import (
	"time"
)

// Config consolidates the settings of the save pipeline and its collaborators
type Config struct {
	Database      DatabaseConfig      `json:"database"`
	Metadata      MetadataConfig      `json:"metadata"`
	Save          SaveConfig          `json:"save"`
	KeyGeneration KeyGenerationConfig `json:"keyGeneration"`
	Logging       LoggingConfig       `json:"logging"`
	Metrics       MetricsConfig       `json:"metrics"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	MaxConnections  int           `json:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout"`
}

// MetadataConfig tells where entity type definitions live
type MetadataConfig struct {
	SchemaDirectory string `json:"schemaDirectory"`
}

// Dialect selects the SQL flavour of the database/sql row store
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SaveConfig contains save pipeline settings
type SaveConfig struct {
	Dialect          Dialect       `json:"dialect"`
	IsolationLevel   string        `json:"isolationLevel"`
	Timeout          time.Duration `json:"timeout"`
	MaxEntities      int           `json:"maxEntities"`
	ValidatePayloads bool          `json:"validatePayloads"`
}

// KeyGenerationConfig contains settings of the sequence key generator
type KeyGenerationConfig struct {
	Enabled          bool          `json:"enabled"`
	SequenceSuffix   string        `json:"sequenceSuffix"`
	FailureThreshold int           `json:"failureThreshold"`
	FailureWindow    time.Duration `json:"failureWindow"`
	OpenDuration     time.Duration `json:"openDuration"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Save: SaveConfig{
			Dialect:        DialectPostgres,
			IsolationLevel: "READ_COMMITTED",
			Timeout:        30 * time.Second,
			MaxEntities:    1000,
		},
		KeyGeneration: KeyGenerationConfig{
			Enabled:          true,
			SequenceSuffix:   "_seq",
			FailureThreshold: 5,
			FailureWindow:    30 * time.Second,
			OpenDuration:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "breeze",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	switch c.Save.Dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return &ConfigError{Field: "save.dialect", Message: "must be one of postgres, sqlite"}
	}

	switch c.Save.IsolationLevel {
	case "", "READ_UNCOMMITTED", "READ_COMMITTED", "REPEATABLE_READ", "SERIALIZABLE":
	default:
		return &ConfigError{Field: "save.isolationLevel", Message: "unknown isolation level " + c.Save.IsolationLevel}
	}

	if c.Save.Timeout < 0 {
		return &ConfigError{Field: "save.timeout", Message: "must not be negative"}
	}

	if c.Save.MaxEntities < 0 {
		return &ConfigError{Field: "save.maxEntities", Message: "must not be negative"}
	}

	if c.KeyGeneration.Enabled && c.KeyGeneration.FailureThreshold <= 0 {
		return &ConfigError{Field: "keyGeneration.failureThreshold", Message: "must be greater than 0"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
