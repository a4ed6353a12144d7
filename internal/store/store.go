package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/matejnovak/govsicrawl/internal/config"
)

// Store is the relational home for the crawl corpus: site registry,
// frontier queue, link graph, and shingle index. Workers talk to each
// other only through it, never directly.
type Store struct {
	db *sql.DB
}

// Open bootstraps the schema against cfg's configured database and
// returns a ready Store. The sqlite driver is pure Go (modernc.org/sqlite),
// so no cgo toolchain is required to run a crawl.
func Open(cfg config.Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DatabaseDSN())
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseConnectionFailure}
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns())
	db.SetMaxIdleConns(cfg.DBMaxIdleConns())

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseConnectionFailure}
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseSchemaFailure}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ResetLeases clears any in-flight lease left by a crashed worker,
// returning leased-but-unfinished rows to the frontier. Called once by
// the supervisor at startup, before any worker is spawned.
func (s *Store) ResetLeases() (int64, error) {
	res, err := s.db.Exec(`UPDATE page SET leased_at = NULL WHERE page_type_code = 'FRONTIER' AND leased_at IS NOT NULL`)
	if err != nil {
		return 0, &StoreError{Message: fmt.Sprintf("reset leases: %v", err), Retryable: false, Cause: ErrCauseQueryFailure}
	}
	return res.RowsAffected()
}
