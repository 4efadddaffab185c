package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// redactDSN returns a copy of the DSN with password replaced by **** for logging.
func redactDSN(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	if u.User != nil {
		user := u.User.Username()
		u.User = url.UserPassword(user, "****")
	}
	return u.String()
}

// extractDBName returns the database name from URL path ("/areuok" -> "areuok").
func extractDBName(u *url.URL) string {
	if u == nil {
		return ""
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	// u.Path never contains query; trimming here is just defensive:
	if idx := strings.Index(dbName, "?"); idx >= 0 {
		dbName = dbName[:idx]
	}
	return strings.TrimSpace(dbName)
}

func isDatabaseDoesNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") &&
		strings.Contains(msg, "database")
}

// Open establishes a connection to PostgreSQL and configures the connection pool.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	dbName := extractDBName(u)
	host := u.Hostname()
	port := u.Port()

	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}

	log.Printf("DB DSN (masked): %s", redactDSN(databaseURL))

	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(5 * time.Minute)
	database.SetConnMaxIdleTime(10 * time.Minute)

	// Ping to verify connection
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := database.PingContext(connectCtx); err != nil {
		_ = database.Close()

		if isDatabaseDoesNotExist(err) {
			return nil, fmt.Errorf(
				"database %q not found on host=%s port=%s: %w",
				dbName, host, port, err,
			)
		}

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}
