package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/flowdash/internal/duckdb/migrate"
	"github.com/tinytelemetry/flowdash/internal/model"
)

// Store manages the DuckDB database holding the flow table and provides query methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	numericCols  []string
	lastLoad     *model.LoadRecord
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		// Ensure parent directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), model.DefaultQueryTimeout)
	defer cancel()
	if _, err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}

	qt := model.DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	s := &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}
	cols, err := s.loadNumericColumns()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.numericCols = cols
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// NumericColumns returns the numeric columns of the flow table in table order.
func (s *Store) NumericColumns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.numericCols...)
}

// SetMaxConcurrentQueries bounds the number of open DuckDB connections.
// Values <= 0 leave the pool unbounded.
func (s *Store) SetMaxConcurrentQueries(n int) {
	if n <= 0 {
		return
	}
	s.db.SetMaxOpenConns(n)
	s.db.SetMaxIdleConns(n)
}

// SchemaStatus reports the applied schema version and pending migrations.
func (s *Store) SchemaStatus() (migrate.Status, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()
	return migrate.NewRunner(s.db).Status(ctx)
}
