package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultPostgresImage = "postgres:16"
	pgUser               = "breeze"
	pgPassword           = "breeze"
	pgDatabase           = "breeze"
)

// TestHarness owns one throwaway Postgres. PGDB (lib/pq) runs fixtures; Pool (pgx) backs the
// save manager under test.
type TestHarness struct {
	Image string // E2E_POSTGRES_IMAGE or postgres:16 when empty

	PGContainer testcontainers.Container
	PGDSN       string
	PGDB        *sql.DB
	Pool        *pgxpool.Pool
}

// StartPostgres starts the container and blocks until both handles answer a ping.
// Callers must call StopPostgres, also when StartPostgres fails halfway.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	image := h.Image
	if image == "" {
		image = os.Getenv("E2E_POSTGRES_IMAGE")
	}
	if image == "" {
		image = defaultPostgresImage
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			// the server restarts once after running init scripts
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if container != nil {
		h.PGContainer = container
	}
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return "", err
	}
	dsn := (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pgUser, pgPassword),
		Host:     fmt.Sprintf("%s:%s", host, port.Port()),
		Path:     "/" + pgDatabase,
		RawQuery: "sslmode=disable",
	}).String()
	h.PGDSN = dsn

	if h.PGDB, err = sql.Open("postgres", dsn); err != nil {
		return "", err
	}
	if h.Pool, err = pgxpool.New(ctx, dsn); err != nil {
		return "", fmt.Errorf("open pgx pool: %w", err)
	}
	if err := waitReady(ctx, 20*time.Second, h.PGDB.PingContext, h.Pool.Ping); err != nil {
		return "", err
	}
	return dsn, nil
}

func waitReady(ctx context.Context, timeout time.Duration, pings ...func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	for _, ping := range pings {
		for {
			err := ping(ctx)
			if err == nil {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("postgres did not become ready: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
	return nil
}

// StopPostgres closes the handles and terminates the container. It is safe to call twice.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.Pool != nil {
		h.Pool.Close()
		h.Pool = nil
	}
	if h.PGDB != nil {
		_ = h.PGDB.Close()
		h.PGDB = nil
	}
	if h.PGContainer == nil {
		return nil
	}
	err := h.PGContainer.Terminate(ctx)
	h.PGContainer = nil
	return err
}
