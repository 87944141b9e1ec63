// Package identitystore provides a SQLite-backed cache of resolved
// identity documents, serving as the identity.Resolver implementation a
// running node uses to check certifying-user signatures without re-walking
// a revision history on every check. Follows a versioned-migration-list
// pattern over a directory-plus-SQLite-index layout, repurposed here to
// index resolved identities instead of model blobs.
package identitystore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/weftmesh/weft/internal/infra/identity"
	"github.com/weftmesh/weft/internal/infra/refstore"
)

// Migrations returns the identity cache's schema migration statements. Each
// string is a single SQL statement, applied in order and idempotently.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS identities (
			urn        TEXT PRIMARY KEY,
			revision   INTEGER NOT NULL,
			data       TEXT NOT NULL,
			cached_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_revision ON identities(urn, revision)`,
	}
}

// Store caches resolved identity.Entity[T] documents keyed by URN. It
// implements identity.Resolver[T] directly, so it can be handed to
// identity.CheckKey/CheckValidity as-is.
type Store[T any] struct {
	db   *sql.DB
	refs *refstore.MemStore
}

// Open opens (creating if absent) the SQLite database at path and applies
// its migrations.
func Open[T any](path string) (*Store[T], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("identitystore: open: %w", err)
	}
	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("identitystore: migrate: %w", err)
		}
	}
	return &Store[T]{db: db, refs: refstore.NewMemStore()}, nil
}

// Refs exposes the cache's "refs/identities/<urn>" namespace as a
// refstore.Store, letting callers stream or look up cached URNs the same
// way they would a real git ref namespace.
func (s *Store[T]) Refs() refstore.Store { return s.refs }

// Close releases the underlying database handle.
func (s *Store[T]) Close() error { return s.db.Close() }

// Put caches e under urn, overwriting any previously cached revision.
func (s *Store[T]) Put(urn string, e *identity.Entity[T]) error {
	blob, err := json.Marshal(e.ToData())
	if err != nil {
		return fmt.Errorf("identitystore: marshal: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO identities (urn, revision, data, cached_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(urn) DO UPDATE SET
			revision  = excluded.revision,
			data      = excluded.data,
			cached_at = excluded.cached_at
	`, urn, e.Revision(), string(blob))
	if err != nil {
		return fmt.Errorf("identitystore: put: %w", err)
	}
	s.refs.Put(refstore.Reference{Name: "refs/identities/" + urn, Hash: e.Hash()})
	return nil
}

// Get returns the cached entity for urn, re-validating it through
// identity.FromData before returning.
func (s *Store[T]) Get(urn string) (*identity.Entity[T], error) {
	var blob string
	err := s.db.QueryRow(`SELECT data FROM identities WHERE urn = ?`, urn).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, identity.ErrResolutionFailed
	}
	if err != nil {
		return nil, fmt.Errorf("identitystore: get: %w", err)
	}
	var data identity.EntityData[T]
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("identitystore: unmarshal cached entity: %w", err)
	}
	return identity.FromData(data)
}

// Resolve implements identity.Resolver[T] against the cache.
func (s *Store[T]) Resolve(urn string) (*identity.Entity[T], error) {
	return s.Get(urn)
}
