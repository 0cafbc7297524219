package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/storage"
)

// SnapshotRepository implements storage.SnapshotRepository for BadgerDB.
// Snapshots live in the same database as the chunk store, so a single Close
// flushes everything.
type SnapshotRepository struct {
	backend *Backend
}

var _ storage.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(backend *Backend) *SnapshotRepository {
	return &SnapshotRepository{backend: backend}
}

// SaveSnapshot stores a snapshot and its manifest under name.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, name string, manifest *core.SnapshotManifest, data []byte) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSnapshotManifestKey(name), storage.MarshalManifest(manifest)); err != nil {
			return err
		}
		if err := tx.Set(makeSnapshotDataKey(name), data); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadSnapshot retrieves the manifest and data stored under name.
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, name string) (*core.SnapshotManifest, []byte, error) {
	var (
		manifest *core.SnapshotManifest
		data     []byte
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeSnapshotManifestKey(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		err = item.Value(func(val []byte) error {
			var err error
			manifest, err = storage.UnmarshalManifest(val)
			return err
		})
		if err != nil {
			return err
		}

		item, err = tx.Get(makeSnapshotDataKey(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	}, false)
	if err != nil {
		return nil, nil, err
	}
	return manifest, data, nil
}

// DeleteSnapshot removes the snapshot stored under name, if any.
func (r *SnapshotRepository) DeleteSnapshot(ctx context.Context, name string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeSnapshotManifestKey(name)); err != nil {
			return err
		}
		if err := tx.Delete(makeSnapshotDataKey(name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
