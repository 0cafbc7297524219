package badger

import (
	"cmp"
	"context"
	"encoding/binary"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// AddChunks stores one or more chunks, assigning IDs and timestamps.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			// Always generate a new ID from the sequence; IDs are never
			// reused, so a re-chunk at the same position gets a fresh one.
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			chunk.Id = core.ID(nextID)
			chunk.State = core.StateActive
			if chunk.Embedding.State == 0 {
				chunk.Embedding.State = core.EmbeddingPending
			}

			chunk.CreatedAt = time.Now().UTC()
			chunk.UpdatedAt = chunk.CreatedAt

			if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
				return err
			}

			sourceKey := makeSourceKey(chunk.Source.Owner, chunk.Source.Position, chunk.Id)
			if err := tx.Set(sourceKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// UpdateChunks rewrites existing chunks.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.Id)

			old, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			// A tombstone is final. An update racing a deletion keeps the
			// stored record deleted instead of resurrecting it.
			if old.State == core.StateTombstoned {
				chunk.State = core.StateTombstoned
			}

			chunk.UpdatedAt = time.Now().UTC()

			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// TombstoneChunks marks chunks as deleted without removing them.
func (r *ChunkRepository) TombstoneChunks(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeChunkKey(id)

			chunk, err := r.readChunk(tx, key)
			if err != nil {
				return err
			}
			if chunk == nil {
				return storage.ErrNotFound
			}
			if chunk.State == core.StateTombstoned {
				continue
			}

			chunk.State = core.StateTombstoned
			chunk.UpdatedAt = time.Now().UTC()

			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// PurgeTombstoned physically removes tombstoned chunks.
func (r *ChunkRepository) PurgeTombstoned(ctx context.Context) (int, error) {
	var purged int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkKeyPrefix()
		iter := tx.NewIterator(opts)

		var stale []*core.Chunk
		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				iter.Close()
				return err
			}
			if chunk != nil && chunk.State == core.StateTombstoned {
				stale = append(stale, chunk)
			}
		}
		iter.Close()

		for _, chunk := range stale {
			if err := tx.Delete(makeChunkKey(chunk.Id)); err != nil {
				return err
			}
			sourceKey := makeSourceKey(chunk.Source.Owner, chunk.Source.Position, chunk.Id)
			if err := tx.Delete(sourceKey); err != nil {
				return err
			}
		}
		purged = len(stale)
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return purged, nil
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunks retrieves multiple chunks by their IDs.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := r.readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// GetSourceChunks retrieves the active chunks of a source, ordered by position.
func (r *ChunkRepository) GetSourceChunks(ctx context.Context, owner string) ([]*core.Chunk, error) {
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeSourcePrefix(owner)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Source keys sort by (position, id), so ids come out in position
		// order without an explicit sort.
		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				id, err := storage.UnmarshalID(val)
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	chunks, err := r.GetChunks(ctx, ids...)
	if err != nil {
		return nil, err
	}

	active := chunks[:0]
	for _, chunk := range chunks {
		if chunk.Active() {
			active = append(active, chunk)
		}
	}
	return active, nil
}

// ListRecent retrieves the most recently created active chunks, newest first.
func (r *ChunkRepository) ListRecent(ctx context.Context, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return []*core.Chunk{}, nil
	}

	var chunks []*core.Chunk
	err := r.ForEachActive(ctx, func(chunk *core.Chunk) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// CreatedAt can collide within one batch; ids are monotonic, so they
	// break the tie.
	slices.SortFunc(chunks, func(a, b *core.Chunk) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Id, a.Id)
	})
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

// ForEachActive calls fn for every active chunk.
func (r *ChunkRepository) ForEachActive(ctx context.Context, fn func(chunk *core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkKeyPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || !chunk.Active() {
				continue
			}
			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// CountActive returns the number of active chunks.
func (r *ChunkRepository) CountActive(ctx context.Context) (int, error) {
	count := 0
	err := r.ForEachActive(ctx, func(*core.Chunk) error {
		count++
		return nil
	})
	return count, err
}

// CountTombstoned returns the number of tombstoned chunks.
func (r *ChunkRepository) CountTombstoned(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkKeyPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk != nil && chunk.State == core.StateTombstoned {
				count++
			}
		}
		return nil
	}, false)
	return count, err
}

// ActiveChecksum returns a BLAKE2b digest over the sorted active chunk IDs.
func (r *ChunkRepository) ActiveChecksum(ctx context.Context) ([]byte, error) {
	var ids []core.ID
	err := r.ForEachActive(ctx, func(chunk *core.Chunk) error {
		ids = append(ids, chunk.Id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)

	h, err := blake2b.New(32, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf, uint64(id))
		h.Write(buf)
	}
	return h.Sum(nil), nil
}

// readChunk reads and unmarshals a chunk, returning nil if the key is absent.
func (r *ChunkRepository) readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
