package testutils

import (
	"context"
	"os"
	"time"

	pgsession "github.com/krew-solutions/ascetic-ops-go/asceticops/session/pg"
)

// PgConnString builds a connection string from DB_* environment variables.
func PgConnString() string {
	dbUsername := getEnv("DB_USERNAME", "devel")
	dbPassword := getEnv("DB_PASSWORD", "devel")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbBasename := getEnv("DB_DATABASE", "devel_grade")

	return "postgres://" + dbUsername + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbBasename
}

// NewPgSessionPool connects to the test database. The pool is pinged so
// callers can skip integration tests when no server is running.
func NewPgSessionPool() (*pgsession.SessionPool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := pgsession.Connect(ctx, PgConnString())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}
