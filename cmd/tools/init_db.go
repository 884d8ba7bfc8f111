package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/breeze"
	"github.com/lychee-technology/breeze/internal"
)

type initDBOptions struct {
	host           string
	port           int
	database       string
	user           string
	password       string
	sslMode        string
	schemaDir      string
	sequenceSuffix string
	dryRun         bool
}

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: breeze-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{}
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "breeze"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.schemaDir, "schema-dir", getenvDefault("SCHEMA_DIR", ""), "Directory containing the entity type schemas")
	flags.StringVar(&opts.sequenceSuffix, "sequence-suffix", getenvDefault("KEYGEN_SEQUENCE_SUFFIX", "_seq"), "Suffix of generated sequence names")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the statements instead of running them")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.schemaDir == "" {
		return fmt.Errorf("-schema-dir is required")
	}

	return initDatabase(opts)
}

func initDatabase(opts initDBOptions) error {
	store, err := internal.NewFileMetadataStore(opts.schemaDir)
	if err != nil {
		return err
	}
	stmts, err := buildSchemaDDL(store, opts.sequenceSuffix)
	if err != nil {
		return err
	}
	if opts.dryRun {
		for _, stmt := range stmts {
			fmt.Println(stmt + ";")
		}
		return nil
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", stmt, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	fmt.Printf("Database initialized successfully: %d entity types.\n", len(store.EntityTypes()))
	return nil
}

func buildConnString(opts initDBOptions) string {
	hostPort := fmt.Sprintf("%s:%d", opts.host, opts.port)

	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   hostPort,
		Path:   "/" + opts.database,
	}

	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// buildSchemaDDL returns the statements creating one table per entity type, referenced tables
// first, plus the sequences of KeyGenerator keys.
func buildSchemaDDL(store breeze.MetadataStore, sequenceSuffix string) ([]string, error) {
	sorted, err := internal.SortEntityTypes(store.EntityTypes())
	if err != nil {
		return nil, err
	}
	sequences := internal.NewSequenceKeyGenerator(nil, breeze.KeyGenerationConfig{SequenceSuffix: sequenceSuffix, FailureThreshold: 1})

	var stmts []string
	for _, et := range sorted {
		if et.AutoGeneratedKeyType == breeze.AutoGeneratedKeyKeyGenerator {
			for _, kp := range et.KeyProperties() {
				if kp.DataType == breeze.DataTypeGuid {
					continue
				}
				stmts = append(stmts, fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", quoteIdentifier(sequences.SequenceName(et, kp))))
			}
		}

		var defs, keys []string
		for _, p := range et.DataProperties {
			defs = append(defs, columnDefinition(et, p))
			if p.IsPartOfKey {
				keys = append(keys, quoteIdentifier(p.Column()))
			}
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))

		for _, fk := range et.ForeignKeyProperties() {
			target, err := store.EntityType(fk.RelatedEntityTypeName)
			if err != nil {
				return nil, err
			}
			targetKeys := target.KeyProperties()
			if len(targetKeys) != 1 {
				continue
			}
			defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				quoteIdentifier(fk.Column()), quoteIdentifier(target.Table()), quoteIdentifier(targetKeys[0].Column())))
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
			quoteIdentifier(et.Table()), strings.Join(defs, ",\n\t")))
	}
	return stmts, nil
}

func columnDefinition(et *breeze.EntityType, p *breeze.DataProperty) string {
	def := quoteIdentifier(p.Column()) + " " + columnType(p.DataType)
	if p.IsPartOfKey && et.AutoGeneratedKeyType == breeze.AutoGeneratedKeyIdentity && p.DataType.IsNumeric() {
		return def + " GENERATED BY DEFAULT AS IDENTITY"
	}
	if !p.IsNullable {
		def += " NOT NULL"
	}
	return def
}

func columnType(dt breeze.DataType) string {
	switch dt {
	case breeze.DataTypeInt16:
		return "SMALLINT"
	case breeze.DataTypeInt32:
		return "INTEGER"
	case breeze.DataTypeInt64:
		return "BIGINT"
	case breeze.DataTypeDecimal:
		return "NUMERIC"
	case breeze.DataTypeDouble:
		return "DOUBLE PRECISION"
	case breeze.DataTypeSingle:
		return "REAL"
	case breeze.DataTypeBoolean:
		return "BOOLEAN"
	case breeze.DataTypeDateTime:
		return "TIMESTAMP"
	case breeze.DataTypeDateTimeOffset:
		return "TIMESTAMPTZ"
	case breeze.DataTypeTime:
		return "TIME"
	case breeze.DataTypeGuid:
		return "UUID"
	case breeze.DataTypeBinary:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func quoteIdentifier(name string) string {
	return pgx.Identifier(splitIdentifier(name)).Sanitize()
}

func splitIdentifier(name string) []string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return []string{name}
	}
	return result
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
