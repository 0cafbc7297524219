package storage

import (
	"context"

	"github.com/poiesic/retrievit/core"
)

// ChunkRepository is the durable, authoritative store of content chunks.
// Every derived index must be rebuildable from it; on any divergence the rule
// is rebuild-from-store, never repair-the-store-from-an-index.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// AddChunks stores one or more chunks.
	// Assigns IDs from the store's sequence (monotonic, never reused), sets
	// CreatedAt/UpdatedAt, marks the chunks active, and defaults the
	// embedding state to pending. Returns the chunks with those fields
	// populated.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// UpdateChunks rewrites existing chunks, refreshing UpdatedAt.
	// Used to persist embedding results and state transitions; chunk text is
	// immutable, so callers must never change Text through this path.
	// A chunk that is tombstoned in the store stays tombstoned no matter what
	// state the caller passes; the written state is reflected back in the
	// returned chunks. Returns ErrNotFound if any chunk does not exist.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// TombstoneChunks marks chunks as deleted. Tombstoned chunks stay in the
	// store until PurgeTombstoned but are excluded from every active-chunk
	// operation. Returns ErrNotFound if any chunk does not exist; already
	// tombstoned chunks are left unchanged.
	TombstoneChunks(ctx context.Context, ids ...core.ID) error

	// PurgeTombstoned physically removes tombstoned chunks and their source
	// index entries. Returns the number of chunks removed.
	PurgeTombstoned(ctx context.Context) (int, error)

	// GetChunk retrieves a single chunk by ID, tombstoned or not.
	// Returns ErrNotFound if the chunk does not exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunks retrieves multiple chunks by their IDs.
	// Returns only the chunks that exist (no error for missing chunks).
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// GetSourceChunks retrieves the active chunks of a source owner, ordered
	// by position ascending.
	GetSourceChunks(ctx context.Context, owner string) ([]*core.Chunk, error)

	// ListRecent retrieves the most recently created active chunks, newest
	// first, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*core.Chunk, error)

	// ForEachActive calls fn for every active chunk. Iteration stops on the
	// first error, which is returned. This is the rebuild path for derived
	// indexes.
	ForEachActive(ctx context.Context, fn func(chunk *core.Chunk) error) error

	// CountActive returns the number of active chunks.
	CountActive(ctx context.Context) (int, error)

	// CountTombstoned returns the number of tombstoned chunks awaiting purge.
	CountTombstoned(ctx context.Context) (int, error)

	// ActiveChecksum returns a digest over the sorted active chunk IDs.
	// Persisted index snapshots record this digest; a mismatch on load means
	// the snapshot cannot be trusted.
	ActiveChecksum(ctx context.Context) ([]byte, error)

	// Close closes the repository and releases resources.
	Close() error
}

// SnapshotRepository persists serialized derived-index state so a process
// restart does not require a full rebuild. Snapshots are caches: losing one
// costs a rebuild, never data.
type SnapshotRepository interface {
	// SaveSnapshot stores a snapshot and its manifest under name, replacing
	// any previous snapshot with that name.
	SaveSnapshot(ctx context.Context, name string, manifest *core.SnapshotManifest, data []byte) error

	// LoadSnapshot retrieves the manifest and data stored under name.
	// Returns ErrNotFound if no snapshot exists.
	LoadSnapshot(ctx context.Context, name string) (*core.SnapshotManifest, []byte, error)

	// DeleteSnapshot removes the snapshot stored under name, if any.
	DeleteSnapshot(ctx context.Context, name string) error
}
