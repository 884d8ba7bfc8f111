package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/breeze"
	"github.com/lychee-technology/breeze/factory"
	"github.com/lychee-technology/breeze/internal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	host        string
	port        int
	database    string
	user        string
	password    string
	sslMode     string
	schemaDir   string
	purge       bool
	bundles     int
	orders      int
	concurrency int
	updates     bool
	seed        int64
	seedGiven   bool
}

// phaseStats collects per-bundle latencies of one benchmark phase.
type phaseStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	rejected  int
	failed    int
}

func (s *phaseStats) record(d time.Duration, result *breeze.SaveResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	switch {
	case err != nil:
		s.failed++
	case result.Failed():
		s.rejected++
	}
}

func main() {
	opts := parseFlags()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		sugar.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	metadata, err := internal.NewFileMetadataStore(opts.schemaDir)
	if err != nil {
		sugar.Fatalf("failed to load metadata: %v", err)
	}
	for _, name := range []string{"Customer", "Order"} {
		if _, err := metadata.EntityType(name); err != nil {
			sugar.Fatalf("entity type %s not found. Ensure it is defined in %s", name, opts.schemaDir)
		}
	}

	if opts.purge {
		if err := withTx(ctx, pool, func(tx pgx.Tx) error {
			return purgeTables(ctx, tx, metadata)
		}); err != nil {
			sugar.Fatalf("failed to purge existing data: %v", err)
		}
		sugar.Info("cleared existing benchmark tables")
	}

	config := breeze.DefaultConfig()
	config.Metadata.SchemaDirectory = opts.schemaDir
	config.Save.ValidatePayloads = true
	reg := prometheus.NewRegistry()
	manager, err := factory.NewSaveManagerWithConfig(config, pool, reg)
	if err != nil {
		sugar.Fatalf("failed to create save manager: %v", err)
	}

	if !opts.seedGiven {
		sugar.Infof("using random seed %d", opts.seed)
	}
	random := rand.New(rand.NewSource(opts.seed))

	bundles := make([]*breeze.SaveBundle, opts.bundles)
	for i := range bundles {
		bundles[i] = buildInsertBundle(random, i, opts.orders)
	}

	var savedMu sync.Mutex
	var savedCustomers []breeze.SavedEntity

	insertStats := &phaseStats{}
	elapsed := runPhase(ctx, opts.concurrency, bundles, insertStats, func(bundle *breeze.SaveBundle) (*breeze.SaveResult, error) {
		result, err := manager.SaveChanges(ctx, bundle)
		if err == nil && !result.Failed() {
			savedMu.Lock()
			for _, e := range result.Entities {
				if breeze.ShortTypeName(e.EntityTypeName) == "Customer" {
					savedCustomers = append(savedCustomers, e)
				}
			}
			savedMu.Unlock()
		}
		return result, err
	})
	report(sugar, "insert", insertStats, elapsed, opts.orders+1)

	if opts.updates && len(savedCustomers) > 0 {
		updates := make([]*breeze.SaveBundle, 0, len(savedCustomers))
		for _, saved := range savedCustomers {
			updates = append(updates, buildUpdateBundle(saved))
		}
		updateStats := &phaseStats{}
		elapsed := runPhase(ctx, opts.concurrency, updates, updateStats, func(bundle *breeze.SaveBundle) (*breeze.SaveResult, error) {
			return manager.SaveChanges(ctx, bundle)
		})
		report(sugar, "update", updateStats, elapsed, 1)
	}

	families, err := reg.Gather()
	if err != nil {
		sugar.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "breeze_saved_entities_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			sugar.Infof("  saved entities %v: %.0f", labels, m.GetCounter().GetValue())
		}
	}
}

// runPhase saves every bundle with at most concurrency saves in flight and returns the wall time.
func runPhase(ctx context.Context, concurrency int, bundles []*breeze.SaveBundle, stats *phaseStats,
	save func(*breeze.SaveBundle) (*breeze.SaveResult, error)) time.Duration {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for _, bundle := range bundles {
		g.Go(func() error {
			began := time.Now()
			result, err := save(bundle)
			stats.record(time.Since(began), result, err)
			if err != nil {
				zap.S().Warnw("save failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return time.Since(start)
}

func report(logger *zap.SugaredLogger, phase string, stats *phaseStats, elapsed time.Duration, entitiesPerBundle int) {
	n := len(stats.latencies)
	if n == 0 {
		logger.Infof("[%s] no bundles saved", phase)
		return
	}
	committed := n - stats.rejected - stats.failed
	logger.Infof("[%s] %d bundles in %v: %d committed, %d rejected, %d failed", phase, n, elapsed.Round(time.Millisecond),
		committed, stats.rejected, stats.failed)
	logger.Infof("[%s] %.1f bundles/s, %.1f entities/s", phase,
		float64(committed)/elapsed.Seconds(), float64(committed*entitiesPerBundle)/elapsed.Seconds())
	logger.Infof("[%s] latency p50=%v p95=%v p99=%v max=%v", phase,
		percentile(stats.latencies, 50), percentile(stats.latencies, 95), percentile(stats.latencies, 99),
		percentile(stats.latencies, 100))
}

// percentile uses the nearest-rank method.
func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	rank := int(p/100*float64(len(sorted))+0.999999) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}

var (
	firstNames = []string{"Ada", "Grace", "Linus", "Barbara", "Ken", "Margaret", "Dennis", "Frances"}
	lastNames  = []string{"Lovelace", "Hopper", "Torvalds", "Liskov", "Thompson", "Hamilton", "Ritchie", "Allen"}
)

// buildInsertBundle creates one Added customer and its Added orders, all on temporary keys.
func buildInsertBundle(r *rand.Rand, index, orders int) *breeze.SaveBundle {
	first := firstNames[r.Intn(len(firstNames))]
	last := lastNames[r.Intn(len(lastNames))]
	customerKey := float64(-1)

	entities := make([]breeze.Entity, 0, orders+1)
	entities = append(entities, breeze.Entity{
		"id":        customerKey,
		"name":      fmt.Sprintf("%s %s %d-%s", first, last, index, uuid.NewString()[:8]),
		"email":     fmt.Sprintf("%s.%s%d@example.com", first, last, index),
		"createdAt": time.Now().Add(-time.Duration(r.Intn(14*24)) * time.Hour).UTC().Format(time.RFC3339),
		breeze.EntityAspectField: map[string]any{
			"entityTypeName": "Customer",
			"entityState":    string(breeze.EntityStateAdded),
		},
	})
	for i := 0; i < orders; i++ {
		entities = append(entities, breeze.Entity{
			"id":         float64(-(i + 2)),
			"customerId": customerKey,
			"total":      float64(r.Intn(100_000)) / 100,
			breeze.EntityAspectField: map[string]any{
				"entityTypeName": "Order",
				"entityState":    string(breeze.EntityStateAdded),
			},
		})
	}
	return &breeze.SaveBundle{
		Entities:    entities,
		SaveOptions: breeze.SaveOptions{Tag: "benchmark-insert"},
	}
}

// buildUpdateBundle renames a saved customer and bumps its version.
func buildUpdateBundle(saved breeze.SavedEntity) *breeze.SaveBundle {
	version := toFloat(saved.Values["version"])
	name, _ := saved.Values["name"].(string)
	return &breeze.SaveBundle{
		Entities: []breeze.Entity{{
			"id":      toFloat(saved.Values["id"]),
			"name":    name + " (updated)",
			"version": version + 1,
			breeze.EntityAspectField: map[string]any{
				"entityTypeName": "Customer",
				"entityState":    string(breeze.EntityStateModified),
				"originalValuesMap": map[string]any{
					"name":    name,
					"version": version,
				},
			},
		}},
		SaveOptions: breeze.SaveOptions{Tag: "benchmark-update"},
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func purgeTables(ctx context.Context, tx pgx.Tx, metadata breeze.MetadataStore) error {
	sorted, err := internal.SortEntityTypes(metadata.EntityTypes())
	if err != nil {
		return err
	}
	// children first
	for _, et := range slices.Backward(sorted) {
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier(strings.Split(et.Table(), ".")).Sanitize()); err != nil {
			return fmt.Errorf("purge %s: %w", et.Table(), err)
		}
	}
	return nil
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
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

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flag.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flag.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "breeze"), "database name")
	flag.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flag.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flag.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flag.StringVar(&opts.schemaDir, "schema-dir", getenvDefault("SCHEMA_DIR", filepath.Join("..", "..", "internal", "testdata", "metadata")), "directory containing JSON schemas")
	flag.BoolVar(&opts.purge, "purge", false, "delete existing rows of every entity type table before running")
	flag.IntVar(&opts.bundles, "bundles", 1000, "number of insert bundles to save")
	flag.IntVar(&opts.orders, "orders", 5, "orders per customer in each insert bundle")
	flag.IntVar(&opts.concurrency, "concurrency", 8, "saves in flight at once")
	flag.BoolVar(&opts.updates, "updates", true, "run an update phase over the inserted customers")
	seed := flag.Int64("seed", 0, "random seed (0 uses current time)")

	flag.Parse()

	opts.schemaDir = filepath.Clean(opts.schemaDir)
	if *seed == 0 {
		opts.seed = time.Now().UnixNano()
	} else {
		opts.seed = *seed
		opts.seedGiven = true
	}
	opts.concurrency = max(opts.concurrency, 1)

	if opts.bundles < 0 || opts.orders < 0 {
		fmt.Fprintln(os.Stderr, "bundle and order counts must be non-negative")
		os.Exit(2)
	}
	return opts
}

func buildConnString(opts options) string {
	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", opts.host, opts.port),
		Path:   "/" + opts.database,
	}
	q := u.Query()
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
