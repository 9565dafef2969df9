// Package store implements the three persistence stores from spec.md §4.5:
// RankingsStore, TopPlaysStore, and SubscriptionsStore. Each wraps a single
// sqlite connection (modernc.org/sqlite, pure Go, no cgo) serialized through
// one mutex, with migrations applied via golang-migrate.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/rankings/*.sql
var rankingsMigrations embed.FS

//go:embed migrations/topplays/*.sql
var topPlaysMigrations embed.FS

//go:embed migrations/subscriptions/*.sql
var subscriptionsMigrations embed.FS

// openDB opens (or creates) a sqlite database file with a single-connection
// pool, matching the teacher's db.Open pragmas plus the "one connection,
// serialize through a mutex" discipline spec.md §4.5/§5 requires.
func openDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return db, nil
}

// migrateUp applies every migration under subdir of embedded to the
// already-open db, using golang-migrate's sqlite3 driver. That driver only
// issues standard SQL through the *sql.DB it is handed, so it is agnostic
// to which concrete driver (modernc vs mattn) originally opened the
// connection — the reason this pairing is safe despite migrate's sqlite3
// driver officially targeting the cgo mattn/go-sqlite3 package.
func migrateUp(db *sql.DB, embedded embed.FS, subdir string) error {
	sub, err := fs.Sub(embedded, subdir)
	if err != nil {
		return fmt.Errorf("store: migrations subdir %s: %w", subdir, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("store: load migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: build migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// OpenRankings opens the rankings database and applies its migrations.
func OpenRankings(path string) (*sql.DB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db, rankingsMigrations, "migrations/rankings"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenTopPlays opens the top-plays database and applies its migrations.
func OpenTopPlays(path string) (*sql.DB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db, topPlaysMigrations, "migrations/topplays"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSubscriptions opens the subscriptions (bot config) database and
// applies its migrations.
func OpenSubscriptions(path string) (*sql.DB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db, subscriptionsMigrations, "migrations/subscriptions"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
