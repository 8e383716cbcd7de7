package entrystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/dirsync/syncprov/errors"
	"github.com/dirsync/syncprov/internal/csn"
	"github.com/dirsync/syncprov/internal/scope"
	"github.com/dirsync/syncprov/store"
)

const (
	selectByNDNQuery = `SELECT dn, ndn, uuid, entry_csn, attrs FROM entries WHERE ndn = ?`
	selectByUUIDQuery = `SELECT dn, ndn, uuid, entry_csn, attrs FROM entries WHERE uuid = ?`
	existsCSNEqualQuery = `SELECT EXISTS(SELECT 1 FROM entries WHERE entry_csn = ?)`
	existsCSNLessEqualQuery = `SELECT EXISTS(SELECT 1 FROM entries WHERE entry_csn <= ? AND entry_csn != '')`
	scanAllQuery = `SELECT dn, ndn, uuid, entry_csn, attrs FROM entries WHERE entry_csn >= ? AND entry_csn <= ? ORDER BY entry_csn ASC`
	upsertEntryQuery = `
		INSERT INTO entries (ndn, dn, uuid, parent_ndn, entry_csn, attrs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ndn) DO UPDATE SET
			dn = excluded.dn, uuid = excluded.uuid, parent_ndn = excluded.parent_ndn,
			entry_csn = excluded.entry_csn, attrs = excluded.attrs`
	deleteEntryQuery       = `DELETE FROM entries WHERE ndn = ?`
	selectContextCSNQuery  = `SELECT csn FROM context_csn WHERE suffix_ndn = ?`
	replaceContextCSNQuery = `UPDATE context_csn SET csn = ? WHERE suffix_ndn = ?`
)

// SuffixDN implements store.Store.
func (s *Store) SuffixDN() string { return s.suffixDN }

func scanEntry(row *sql.Row) (*store.Entry, error) {
	var dn, ndn string
	var idBytes []byte
	var entryCSN string
	var attrsJSON string
	if err := row.Scan(&dn, &ndn, &idBytes, &entryCSN, &attrsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning entry row")
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return nil, errors.Wrap(err, "decoding entry uuid")
	}
	var attrs scope.Attrs
	if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
		return nil, errors.Wrap(err, "decoding entry attrs")
	}
	return &store.Entry{DN: dn, NDN: ndn, UUID: id, CSN: csn.CSN(entryCSN), Attrs: attrs}, nil
}

// GetByNDN implements store.Store.
func (s *Store) GetByNDN(ctx context.Context, ndn string) (*store.Entry, error) {
	row := s.db.QueryRowContext(ctx, selectByNDNQuery, ndn)
	return scanEntry(row)
}

// GetByUUID implements store.Store.
func (s *Store) GetByUUID(ctx context.Context, id uuid.UUID) (*store.Entry, error) {
	b := id
	row := s.db.QueryRowContext(ctx, selectByUUIDQuery, b[:])
	return scanEntry(row)
}

// ExistsWithCSNEqual implements store.Store.
func (s *Store) ExistsWithCSNEqual(ctx context.Context, c csn.CSN) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsCSNEqualQuery, string(c)).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "probing entryCSN equality")
	}
	return exists, nil
}

// ExistsWithCSNLessEqual implements store.Store.
func (s *Store) ExistsWithCSNLessEqual(ctx context.Context, c csn.CSN) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsCSNLessEqualQuery, string(c)).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "probing entryCSN<=")
	}
	return exists, nil
}

// Search implements store.Store. The CSN bound is pushed down to SQL;
// scope and filter are evaluated in Go, since they are caller-supplied
// closures the store cannot compile into SQL.
func (s *Store) Search(ctx context.Context, base string, sc scope.Scope, f scope.Filter, minCSN, maxCSN csn.CSN, visit store.Visitor) error {
	lo, hi := string(minCSN), string(maxCSN)
	if hi == "" {
		hi = "￿￿￿￿" // sentinel sorting after any real CSN
	}
	rows, err := s.db.QueryContext(ctx, scanAllQuery, lo, hi)
	if err != nil {
		return errors.Wrap(err, "scanning entries")
	}
	defer rows.Close()

	for rows.Next() {
		var dn, ndn string
		var idBytes []byte
		var entryCSN string
		var attrsJSON string
		if err := rows.Scan(&dn, &ndn, &idBytes, &entryCSN, &attrsJSON); err != nil {
			return errors.Wrap(err, "scanning entry row")
		}
		if !scope.Matches(ndn, base, sc) {
			continue
		}
		var attrs scope.Attrs
		if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
			return errors.Wrap(err, "decoding entry attrs")
		}
		if !f.Matches(attrs) {
			continue
		}
		id, err := uuid.FromBytes(idBytes)
		if err != nil {
			return errors.Wrap(err, "decoding entry uuid")
		}
		e := &store.Entry{DN: dn, NDN: ndn, UUID: id, CSN: csn.CSN(entryCSN), Attrs: attrs}
		if err := visit(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ContextCSN implements store.Store.
func (s *Store) ContextCSN(ctx context.Context) (csn.CSN, error) {
	var c string
	if err := s.db.QueryRowContext(ctx, selectContextCSNQuery, s.suffixDN).Scan(&c); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(err, "reading contextCSN")
	}
	return csn.CSN(c), nil
}

// ReplaceContextCSN implements store.Store. This is a direct UPDATE
// against context_csn, not a write through the entries table, so it
// never triggers whatever write hook is layered above this store.
func (s *Store) ReplaceContextCSN(ctx context.Context, c csn.CSN) error {
	_, err := s.db.ExecContext(ctx, replaceContextCSNQuery, string(c), s.suffixDN)
	if err != nil {
		return errors.Wrap(err, "writing back contextCSN")
	}
	return nil
}

// PutEntry inserts or replaces an entry. This is the write path the
// provider's mod-serializer-guarded caller uses to actually commit a
// write before invoking the matcher's post-write pass; it is not part of
// store.Store because the sync-provider core never calls it directly
// (the external request/response plumbing does).
func (s *Store) PutEntry(ctx context.Context, e *store.Entry) error {
	attrsJSON, err := json.Marshal(e.Attrs)
	if err != nil {
		return errors.Wrap(err, "encoding entry attrs")
	}
	b := e.UUID
	_, err = s.db.ExecContext(ctx, upsertEntryQuery, e.NDN, e.DN, b[:], parentOf(e.NDN), string(e.CSN), string(attrsJSON))
	if err != nil {
		return errors.Wrap(err, "upserting entry")
	}
	return nil
}

// DeleteEntry removes the entry at ndn.
func (s *Store) DeleteEntry(ctx context.Context, ndn string) error {
	_, err := s.db.ExecContext(ctx, deleteEntryQuery, ndn)
	if err != nil {
		return errors.Wrap(err, "deleting entry")
	}
	return nil
}

func parentOf(ndn string) string {
	idx := strings.Index(ndn, ",")
	if idx < 0 {
		return ""
	}
	return ndn[idx+1:]
}
