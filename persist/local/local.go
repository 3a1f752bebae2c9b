// Package local persists a lattice store in an embedded BadgerDB database.
//
// Each collection snapshot is stored as a JSON blob under its own key, and
// Save replaces the full set atomically in one Badger transaction, so a loaded
// store is always a consistent whole-store capture. Snapshots cannot be taken
// while any collection has an open transaction; Save surfaces that as
// store.ErrUnresolvedTransaction.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/store"
)

// collection snapshots live under this key prefix, one key per collection.
const collectionPrefix = "collection/"

// Config holds configuration for a local snapshot database.
type Config struct {
	// Path is the directory for the Badger files.
	// Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM; useful for tests.
	InMemory bool

	// SyncWrites makes Badger fsync each write.
	// Default: true.
	SyncWrites bool

	// Logger receives save/load events. Defaults to slog.Default().
	// Badger's own logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the production defaults for the given directory.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no fsync.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// DB is a Badger-backed snapshot store.
type DB struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the snapshot database.
func Open(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("local: path is required for a persistent database")
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("local: open badger at %q: %w", cfg.Path, err)
	}
	return &DB{db: db, logger: cfg.Logger}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Save captures the store and writes it out, replacing any previous save.
// It fails with store.ErrUnresolvedTransaction if a transaction is open.
func (d *DB) Save(ctx context.Context, s *store.Store) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		// Drop collections from earlier saves that no longer exist.
		if err := deleteStale(txn, snap); err != nil {
			return err
		}
		for _, cs := range snap.Collections {
			raw, err := json.Marshal(cs)
			if err != nil {
				return fmt.Errorf("encode collection %q: %w", cs.Name, err)
			}
			if err := txn.Set([]byte(collectionPrefix+cs.Name), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("local: save: %w", err)
	}

	d.logger.Debug("store saved", "collections", len(snap.Collections))
	return nil
}

// Load reads the saved snapshot and restores a store from it with the given
// configuration. A database with no saved state restores an empty store.
func (d *DB) Load(ctx context.Context, cfg store.Config) (*store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &store.Snapshot{}

	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				var cs store.CollectionSnapshot
				if err := json.Unmarshal(raw, &cs); err != nil {
					return fmt.Errorf("%w: decode %q: %v",
						store.ErrInvalidSnapshot, string(it.Item().Key()), err)
				}
				snap.Collections = append(snap.Collections, cs)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: load: %w", err)
	}

	restored, err := store.Restore(cfg, snap)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("store loaded", "collections", len(snap.Collections))
	return restored, nil
}

// deleteStale removes saved collections absent from the new snapshot.
func deleteStale(txn *badger.Txn, snap *store.Snapshot) error {
	keep := make(map[string]bool, len(snap.Collections))
	for _, cs := range snap.Collections {
		keep[collectionPrefix+cs.Name] = true
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(collectionPrefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var stale [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if !keep[string(key)] {
			stale = append(stale, key)
		}
	}
	it.Close()

	for _, key := range stale {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
