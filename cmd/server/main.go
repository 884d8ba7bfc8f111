package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/breeze"
	"github.com/lychee-technology/breeze/factory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server with SaveManager
type Server struct {
	manager  breeze.SaveManager
	health   func(ctx context.Context) error
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

// NewServer creates a new Server instance
func NewServer(manager breeze.SaveManager, health func(ctx context.Context) error, gatherer prometheus.Gatherer) *Server {
	return &Server{
		manager:  manager,
		health:   health,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/breeze/SaveChanges", s.handleSaveChanges)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	logger, err := newLogger(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config := loadConfig()
	if err := config.Validate(); err != nil {
		sugar.Fatalf("invalid configuration: %v", err)
	}
	sugar.Infow("configuration loaded",
		"schemaDir", config.Metadata.SchemaDirectory,
		"dialect", config.Save.Dialect,
		"isolationLevel", config.Save.IsolationLevel,
	)

	var (
		manager breeze.SaveManager
		health  func(ctx context.Context) error
	)
	switch config.Save.Dialect {
	case breeze.DialectSQLite:
		db, err := sql.Open("sqlite", getEnv("SQLITE_PATH", "breeze.db")+"?_pragma=foreign_keys(1)")
		if err != nil {
			sugar.Fatalf("failed to open sqlite database: %v", err)
		}
		defer func() { _ = db.Close() }()
		manager, err = factory.NewSQLSaveManager(config, db, prometheus.DefaultRegisterer)
		if err != nil {
			sugar.Fatalf("failed to create save manager: %v", err)
		}
		health = db.PingContext
	default:
		pool, err := createDatabasePoolFromConfig(config.Database)
		if err != nil {
			sugar.Fatalf("failed to create database pool: %v", err)
		}
		defer pool.Close()
		manager, err = factory.NewSaveManagerWithConfig(config, pool, prometheus.DefaultRegisterer)
		if err != nil {
			sugar.Fatalf("failed to create save manager: %v", err)
		}
		health = pool.Ping
	}

	server := NewServer(manager, health, prometheus.DefaultGatherer)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig builds the configuration from environment variables on top of the defaults.
func loadConfig() *breeze.Config {
	config := breeze.DefaultConfig()

	config.Database = breeze.DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		Database:        getEnv("DB_NAME", "breeze"),
		Username:        getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxConnections:  getEnvInt("DB_MAX_CONNECTIONS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 3600)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second,
		Timeout:         time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	config.Metadata.SchemaDirectory = getEnv("SCHEMA_DIR", "./schemas")

	config.Save.Dialect = breeze.Dialect(getEnv("DB_DIALECT", string(config.Save.Dialect)))
	config.Save.IsolationLevel = getEnv("SAVE_ISOLATION_LEVEL", config.Save.IsolationLevel)
	config.Save.Timeout = time.Duration(getEnvInt("SAVE_TIMEOUT_SECONDS", int(config.Save.Timeout/time.Second))) * time.Second
	config.Save.MaxEntities = getEnvInt("SAVE_MAX_ENTITIES", config.Save.MaxEntities)
	config.Save.ValidatePayloads = getEnvBool("SAVE_VALIDATE_PAYLOADS", config.Save.ValidatePayloads)

	config.KeyGeneration.Enabled = getEnvBool("KEYGEN_ENABLED", config.KeyGeneration.Enabled)
	config.KeyGeneration.SequenceSuffix = getEnv("KEYGEN_SEQUENCE_SUFFIX", config.KeyGeneration.SequenceSuffix)

	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", config.Metrics.Enabled)
	config.Metrics.Namespace = getEnv("METRICS_NAMESPACE", config.Metrics.Namespace)
	return config
}

// createDatabasePoolFromConfig creates a PostgreSQL connection pool from config
func createDatabasePoolFromConfig(config breeze.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MinConns = int32(config.MaxIdleConns)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
