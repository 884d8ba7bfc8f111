package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/breeze"
	"github.com/lychee-technology/breeze/factory"
	"github.com/lychee-technology/breeze/internal"
	"go.uber.org/zap"
)

func main() {
	csvFile := flag.String("csv", "", "Path to CSV file to import (required)")
	schemaDir := flag.String("schema-dir", "./schemas", "Directory containing schema files")
	typeName := flag.String("type", "", "Target entity type, Name or Name:#Namespace (required)")
	batchSize := flag.Int("batch-size", 100, "Rows per save bundle")
	dialect := flag.String("dialect", "postgres", "Database dialect: postgres or sqlite")
	dbURL := flag.String("db", "", "Database URL or sqlite file (or set DATABASE_URL env)")
	dryRun := flag.Bool("dry-run", false, "Parse and classify rows without writing to the database")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if *verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if *csvFile == "" || *typeName == "" {
		sugar.Error("Error: -csv and -type flags are required")
		flag.Usage()
		os.Exit(1)
	}

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !*dryRun {
		sugar.Error("Error: Database URL is required. Use -db flag or set DATABASE_URL environment variable.")
		os.Exit(1)
	}

	ctx := context.Background()

	sugar.Infof("Loading schemas from: %s", *schemaDir)
	metadata, err := internal.NewFileMetadataStore(*schemaDir)
	if err != nil {
		sugar.Fatalf("Failed to load metadata: %v", err)
	}
	et, err := metadata.EntityType(*typeName)
	if err != nil {
		sugar.Fatalf("Entity type %q not found: %v", *typeName, err)
	}
	sugar.Infof("Importing into %s (table %s)", et.QualifiedName(), et.Table())

	var manager breeze.SaveManager
	if *dryRun {
		sugar.Infof("Dry run mode: validating CSV file %s", *csvFile)
		manager = &dryRunManager{metadata: metadata}
	} else {
		config := breeze.DefaultConfig()
		config.Metadata.SchemaDirectory = *schemaDir
		config.Save.Dialect = breeze.Dialect(*dialect)
		config.Save.ValidatePayloads = true

		var closeFn func()
		manager, closeFn, err = openSaveManager(ctx, config, databaseURL)
		if err != nil {
			sugar.Fatalf("Failed to create save manager: %v", err)
		}
		defer closeFn()
	}

	importer := NewCSVImporter(manager, et, nil, *batchSize)
	importer.SetLogger(sugar.Named("Import"))

	sugar.Infof("Starting import from: %s, batch size: %d", *csvFile, *batchSize)
	startTime := time.Now()
	result, err := importer.ImportFromFile(ctx, *csvFile)
	if err != nil {
		sugar.Fatalf("Import failed: %v", err)
	}
	sugar.Infof("Import completed in %v", time.Since(startTime))
	printResult(result, sugar)

	if result.FailedCount > 0 {
		os.Exit(1)
	}
}

// openSaveManager connects with pgx for postgres, which also wires sequence key generation,
// and through database/sql for sqlite.
func openSaveManager(ctx context.Context, config *breeze.Config, databaseURL string) (breeze.SaveManager, func(), error) {
	if config.Save.Dialect == breeze.DialectSQLite {
		db, err := sql.Open("sqlite", databaseURL)
		if err != nil {
			return nil, nil, err
		}
		manager, err := factory.NewSQLSaveManager(config, db, nil)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return manager, func() { _ = db.Close() }, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	manager, err := factory.NewSaveManagerWithConfig(config, pool, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return manager, pool.Close, nil
}

func printResult(result *ImportResult, logger *zap.SugaredLogger) {
	logger.Info("Import Summary")
	logger.Infof("  Total rows:     %d", result.TotalRows)
	logger.Infof("  Successful:     %d", result.SuccessCount)
	logger.Infof("  Failed:         %d", result.FailedCount)
	logger.Infof("  Batches:        %d", result.Batches)
	logger.Infof("  Key mappings:   %d", result.KeyMappings)
	logger.Infof("  Duration:       %v", result.Duration)

	if result.FailedCount > 0 && result.TotalRows > 0 {
		successRate := float64(result.SuccessCount) / float64(result.TotalRows) * 100
		logger.Infof("  Success rate:   %.2f%%", successRate)
	}

	if len(result.Errors) > 0 {
		logger.Infof("First %d errors:", min(10, len(result.Errors)))
		for i, err := range result.Errors {
			if i >= 10 {
				logger.Infof("  ... and %d more errors", len(result.Errors)-10)
				break
			}
			logger.Infof("  [%d] %s", i+1, err.Error())
		}
	}
}

// dryRunManager classifies bundles without touching a database.
type dryRunManager struct {
	metadata breeze.MetadataStore
}

func (m *dryRunManager) SaveChanges(_ context.Context, bundle *breeze.SaveBundle, _ ...breeze.SaveOption) (*breeze.SaveResult, error) {
	infos, err := internal.ClassifyEntities(m.metadata, bundle.Entities)
	if err != nil {
		return nil, err
	}
	result := &breeze.SaveResult{Entities: make([]breeze.SavedEntity, 0, len(infos))}
	for _, info := range infos {
		result.Entities = append(result.Entities, breeze.SavedEntity{
			EntityTypeName: info.EntityType.QualifiedName(),
			State:          info.State,
			Values:         info.Entity,
		})
	}
	return result, nil
}
