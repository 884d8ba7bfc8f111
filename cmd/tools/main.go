package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate-metadata":
		if err := runValidateMetadata(os.Args[2:], os.Stdout); err != nil {
			sugar.Fatalf("validate-metadata: %v", err)
		}
	case "save-order":
		if err := runSaveOrder(os.Args[2:], os.Stdout); err != nil {
			sugar.Fatalf("save-order: %v", err)
		}
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: breeze-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  validate-metadata <dir>   Load every entity type schema of a directory and report problems")
	logger.Info("  save-order <dir>          Print the order in which entity types are saved")
	logger.Info("  init-db                   Create tables and sequences for the entity types of a schema directory")
}
