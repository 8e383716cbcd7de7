package entrystore

import (
	"database/sql"
	"embed"
	"sort"

	"github.com/dirsync/syncprov/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies every migration file under migrations/ not yet recorded
// in schema_migrations, in filename order, each inside its own
// transaction.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return errors.Wrap(err, "creating schema_migrations table")
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "reading embedded migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, name).Scan(&applied); err != nil {
			return errors.Wrapf(err, "checking migration status for %s", name)
		}
		if applied > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "reading migration %s", name)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "beginning transaction for migration %s", name)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "applying migration %s", name)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, name); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "recording migration %s", name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "committing migration %s", name)
		}
	}
	return nil
}
