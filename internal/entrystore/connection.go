// Package entrystore is a SQLite-backed implementation of store.Store —
// the directory entry store the sync provider's core is embedded
// against. It is a reference implementation for cmd/syncprovd and the
// integration tests, not part of the sync-provider contract itself.
package entrystore

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dirsync/syncprov/errors"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db       *sql.DB
	suffixDN string
}

// Open opens (creating if necessary) a SQLite database at path, applies
// pending migrations, and returns a Store rooted at suffixDN. WAL journal
// mode and a busy timeout are set so that the checkpoint ticker's
// write-back never deadlocks against a concurrent present-phase scan.
func Open(path, suffixDN string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "opening entry store database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "pinging entry store database")
	}

	s := &Store{db: db, suffixDN: suffixDN}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying entry store migrations")
	}
	if err := s.ensureSuffixRow(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSuffixRow() error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO context_csn (suffix_ndn, csn) VALUES (?, '')`,
		s.suffixDN,
	)
	if err != nil {
		return errors.Wrap(err, "seeding context_csn row")
	}
	return nil
}
