package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Stores bundles the two database handles and the typed accessors over them.
type Stores struct {
	catalogDB      *sql.DB
	transactionsDB *sql.DB

	Catalog      *Catalog
	Transactions *Transactions
}

// Open opens (creating if necessary) the catalog and transactions databases
// at the given paths, switches both to WAL journaling, and applies the
// schema.
func Open(catalogPath, transactionsPath string) (*Stores, error) {
	catalogDB, err := openSQLite(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if _, err := catalogDB.Exec(catalogSchema); err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}

	transactionsDB, err := openSQLite(transactionsPath)
	if err != nil {
		catalogDB.Close()
		return nil, fmt.Errorf("failed to open transactions database: %w", err)
	}
	if _, err := transactionsDB.Exec(transactionsSchema); err != nil {
		catalogDB.Close()
		transactionsDB.Close()
		return nil, fmt.Errorf("failed to apply transactions schema: %w", err)
	}

	return &Stores{
		catalogDB:      catalogDB,
		transactionsDB: transactionsDB,
		Catalog:        &Catalog{catalog: catalogDB, transactions: transactionsDB},
		Transactions:   &Transactions{db: transactionsDB},
	}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	// WAL keeps readers unblocked during command transactions; the busy
	// timeout covers short writer contention instead of failing fast.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// CatalogDB exposes the raw catalog handle, used by seeding.
func (s *Stores) CatalogDB() *sql.DB { return s.catalogDB }

// TransactionsDB exposes the raw transactions handle, used by seeding.
func (s *Stores) TransactionsDB() *sql.DB { return s.transactionsDB }

// Close closes both database handles.
func (s *Stores) Close() error {
	var firstErr error
	if err := s.catalogDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.transactionsDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
