package store

import (
	"database/sql"
	"fmt"
	"sync"

	commonsLogger "github.com/flanksource/commons/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" database/sql driver; NewDB opens its connection through gorm.io/driver/sqlite instead
)

// DB wraps a GORM database with mutex synchronization for write operations.
// Readers (Query/QueryRow) bypass the mutex: SQLite's WAL mode lets readers
// run concurrently with a single writer, matching §4.2/§5's concurrency
// model (single writer, many MVCC-snapshot readers).
type DB struct {
	conn    *gorm.DB
	writeMu sync.Mutex
}

// NewDB opens a synchronized GORM database wrapper over a SQLite file and
// configures it for the indexer's write pattern: WAL journaling, a busy
// timeout instead of immediate SQLITE_BUSY errors, and foreign keys on.
func NewDB(dataSourceName string) (*DB, error) {
	var logMode logger.LogLevel = logger.Silent
	if commonsLogger.IsLevelEnabled(3) {
		logMode = logger.Info
	}

	gormDB, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return &DB{conn: gormDB}, nil
}

// GormDB exposes the underlying GORM handle for AutoMigrate and model CRUD.
func (db *DB) GormDB() *gorm.DB {
	return db.conn
}

// Exec runs a write statement under the write mutex.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	sqlDB, err := db.conn.DB()
	if err != nil {
		return nil, err
	}
	return sqlDB.Exec(query, args...)
}

// Query runs a read statement without taking the write mutex.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return nil, err
	}
	return sqlDB.Query(query, args...)
}

// QueryRow runs a single-row read statement without taking the write mutex.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	sqlDB, _ := db.conn.DB()
	return sqlDB.QueryRow(query, args...)
}

// Begin starts a write transaction, holding the write mutex until
// Commit/Rollback. Every per-artifact ingestion (§4.5) runs through exactly
// one of these.
func (db *DB) Begin() (*Tx, error) {
	db.writeMu.Lock()
	sqlDB, err := db.conn.DB()
	if err != nil {
		db.writeMu.Unlock()
		return nil, err
	}
	tx, err := sqlDB.Begin()
	if err != nil {
		db.writeMu.Unlock()
		return nil, err
	}
	return &Tx{tx: tx, db: db}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx wraps sql.Tx to ensure the write mutex is released exactly once.
type Tx struct {
	tx       *sql.Tx
	db       *DB
	finished bool
}

func (t *Tx) Exec(query string, args ...interface{}) (sql.Result, error) {
	return t.tx.Exec(query, args...)
}

func (t *Tx) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.Query(query, args...)
}

func (t *Tx) QueryRow(query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRow(query, args...)
}

func (t *Tx) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	defer t.db.writeMu.Unlock()
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	defer t.db.writeMu.Unlock()
	return t.tx.Rollback()
}
