package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/retrievit/ai"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/index/lexical"
	"github.com/poiesic/retrievit/index/vector"
	"github.com/poiesic/retrievit/storage"
)

// stripeCount sizes the lock table that serializes embedding work per chunk.
const stripeCount = 64

// Manager applies chunk lifecycle events to the lexical and vector indexes
// and schedules asynchronous embedding generation.
//
// Lexical indexing is synchronous: a chunk is findable by keyword as soon as
// Apply returns. Vector indexing happens once the chunk's embedding is ready,
// which may be immediately (embedding already present) or after a background
// worker has produced one.
type Manager struct {
	chunkRepository    storage.ChunkRepository
	snapshotRepository storage.SnapshotRepository
	embedder           ai.Embedder

	lex atomic.Pointer[lexical.Index]
	vec atomic.Pointer[vector.Index]

	pool    *ants.Pool
	stripes [stripeCount]sync.Mutex

	// rebuildMu serializes Apply against full index swaps so no event lands
	// on an index that is about to be discarded.
	rebuildMu sync.RWMutex

	pending atomic.Int64

	dimension     int
	modelName     string
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithPoolSize sets the worker pool size for embedding generation.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(m *Manager) error {
		if size < 1 {
			size = 1
		}

		if m.pool != nil {
			m.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		m.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithRetry configures the retry policy for embedding requests.
// Default is 3 attempts starting at one second.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(m *Manager) error {
		if maxAttempts < 1 {
			return ai.ErrInvalidMaxAttempts
		}
		m.retryAttempts = maxAttempts
		m.retryDelay = baseDelay
		return nil
	}
}

// WithModelName records which embedding model produced the stored vectors.
func WithModelName(name string) Option {
	return func(m *Manager) error {
		m.modelName = name
		return nil
	}
}

// New creates a manager over empty indexes. Call LoadOrRebuild or RebuildAll
// afterwards to populate them from the chunk store.
func New(
	chunkRepository storage.ChunkRepository,
	snapshotRepository storage.SnapshotRepository,
	embedder ai.Embedder,
	dimension int,
	opts ...Option,
) (*Manager, error) {
	if chunkRepository == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if snapshotRepository == nil {
		return nil, ErrSnapshotRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	vec, err := vector.New(dimension)
	if err != nil {
		return nil, err
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		chunkRepository:    chunkRepository,
		snapshotRepository: snapshotRepository,
		embedder:           embedder,
		pool:               pool,
		dimension:          dimension,
		retryAttempts:      3,
		retryDelay:         time.Second,
		logger:             slog.Default(),
	}
	m.lex.Store(lexical.New())
	m.vec.Store(vec)

	for _, opt := range opts {
		if optErr := opt(m); optErr != nil {
			m.Release()
			return nil, optErr
		}
	}

	return m, nil
}

// Lexical returns the current lexical index. The pointer is stable for the
// duration of a query but may be swapped by a rebuild.
func (m *Manager) Lexical() *lexical.Index {
	return m.lex.Load()
}

// Vector returns the current vector index.
func (m *Manager) Vector() *vector.Index {
	return m.vec.Load()
}

// Dimension returns the embedding dimension the manager enforces.
func (m *Manager) Dimension() int {
	return m.dimension
}

// Apply reflects committed chunk store changes in the derived indexes.
// Lexical changes are visible when Apply returns; vector changes for chunks
// without a ready embedding are completed asynchronously.
func (m *Manager) Apply(ctx context.Context, events ...Event) error {
	m.rebuildMu.RLock()
	defer m.rebuildMu.RUnlock()

	var errs []error
	for _, event := range events {
		switch ev := event.(type) {
		case Created:
			if err := m.applyChunk(ev.Chunk); err != nil {
				errs = append(errs, err)
			}
		case Updated:
			m.removeChunk(ev.OldId)
			if err := m.applyChunk(ev.Chunk); err != nil {
				errs = append(errs, err)
			}
		case Deleted:
			m.removeChunk(ev.Id)
		default:
			errs = append(errs, fmt.Errorf("unknown event type %T", event))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) applyChunk(chunk *core.Chunk) error {
	if chunk == nil {
		return core.ErrInvalidChunk
	}

	m.lex.Load().Add(chunk.Id, chunk.Text)

	if chunk.Embedding.State == core.EmbeddingReady {
		if err := m.vec.Load().Upsert(chunk.Id, chunk.Embedding.Vector); err != nil {
			return fmt.Errorf("chunk %d: %w", chunk.Id, err)
		}
		return nil
	}

	m.enqueueEmbedding(chunk.Id)
	return nil
}

func (m *Manager) removeChunk(id core.ID) {
	stripe := &m.stripes[id%stripeCount]
	stripe.Lock()
	defer stripe.Unlock()

	m.lex.Load().Remove(id)
	m.vec.Load().Remove(id)
}

// enqueueEmbedding schedules background embedding generation for the chunk.
// Submission failures (released pool) are logged; the chunk stays pending in
// the store and is picked up by the next rebuild or reconcile.
func (m *Manager) enqueueEmbedding(id core.ID) {
	m.pending.Add(1)
	err := m.pool.Submit(func() {
		defer m.pending.Add(-1)
		m.embedChunk(context.Background(), id)
	})
	if err != nil {
		m.pending.Add(-1)
		m.logger.Warn("embedding job not scheduled", "chunk", id, "err", err)
	}
}

// embedChunk generates and persists the embedding for one chunk.
// The store is re-read under the chunk's stripe lock, and the write-back
// keeps a tombstone set while the embedding was in flight, so a deleted
// chunk is never resurrected into the store or an index.
func (m *Manager) embedChunk(ctx context.Context, id core.ID) {
	stripe := &m.stripes[id%stripeCount]
	stripe.Lock()
	defer stripe.Unlock()

	chunk, err := m.chunkRepository.GetChunk(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Error("error loading chunk for embedding", "chunk", id, "err", err)
		}
		return
	}
	if !chunk.Active() {
		m.logger.Debug("skipping embedding for tombstoned chunk", "chunk", id)
		return
	}
	if chunk.Embedding.State == core.EmbeddingReady {
		if err := m.vec.Load().Upsert(chunk.Id, chunk.Embedding.Vector); err != nil {
			m.logger.Error("error indexing existing embedding", "chunk", id, "err", err)
		}
		return
	}

	var vec []float32
	err = ai.RetryWithBackoff(ctx, func() error {
		var embedErr error
		vec, embedErr = m.embedder.EmbedText(ctx, chunk.Text)
		return embedErr
	}, m.retryAttempts, m.retryDelay)

	if err == nil && len(vec) != m.dimension {
		err = fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(vec), m.dimension)
	}

	if err != nil {
		m.logger.Error("embedding generation failed", "chunk", id, "err", err)
		chunk.Embedding = core.Embedding{Model: m.modelName, State: core.EmbeddingFailed}
		if _, updateErr := m.chunkRepository.UpdateChunks(ctx, chunk); updateErr != nil {
			m.logger.Error("error recording failed embedding", "chunk", id, "err", updateErr)
		}
		return
	}

	// Stored unit-normalized so similarity is a plain inner product.
	chunk.Embedding = core.Embedding{
		Vector: vector.Normalize(vec),
		Model:  m.modelName,
		State:  core.EmbeddingReady,
	}
	updated, err := m.chunkRepository.UpdateChunks(ctx, chunk)
	if err != nil {
		m.logger.Error("error persisting embedding", "chunk", id, "err", err)
		return
	}

	// The store keeps a tombstone set by a concurrent deletion. When the
	// write-back comes out tombstoned, the chunk must not enter the index.
	if !updated[0].Active() {
		m.logger.Debug("chunk tombstoned during embedding", "chunk", id)
		return
	}

	if err := m.vec.Load().Upsert(chunk.Id, chunk.Embedding.Vector); err != nil {
		m.logger.Error("error indexing embedding", "chunk", id, "err", err)
	}
}

// PendingEmbeddings returns the number of embedding jobs scheduled but not
// yet finished.
func (m *Manager) PendingEmbeddings() int {
	return int(m.pending.Load())
}

// WaitForEmbeddings blocks until all scheduled embedding jobs have finished
// or the context is done.
func (m *Manager) WaitForEmbeddings(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RebuildAll reconstructs both indexes from the chunk store and atomically
// swaps them in. Chunks whose embeddings are missing are re-scheduled for
// background embedding. Fresh snapshots are saved afterwards.
func (m *Manager) RebuildAll(ctx context.Context) error {
	m.logger.Info("rebuilding indexes from chunk store")
	start := time.Now()

	lex := lexical.New()
	vec, err := vector.New(m.dimension)
	if err != nil {
		return err
	}

	var needsEmbedding []core.ID

	m.rebuildMu.Lock()
	err = m.chunkRepository.ForEachActive(ctx, func(chunk *core.Chunk) error {
		lex.Add(chunk.Id, chunk.Text)

		if chunk.Embedding.State == core.EmbeddingReady && len(chunk.Embedding.Vector) == m.dimension {
			return vec.Upsert(chunk.Id, chunk.Embedding.Vector)
		}
		needsEmbedding = append(needsEmbedding, chunk.Id)
		return nil
	})
	if err != nil {
		m.rebuildMu.Unlock()
		return fmt.Errorf("rebuild failed: %w", err)
	}

	m.lex.Store(lex)
	m.vec.Store(vec)
	m.rebuildMu.Unlock()

	for _, id := range needsEmbedding {
		m.enqueueEmbedding(id)
	}

	m.logger.Info("index rebuild complete",
		"chunks", lex.Len(),
		"vectors", vec.Len(),
		"pendingEmbeddings", len(needsEmbedding),
		"elapsed", time.Since(start))

	if err := m.SaveSnapshots(ctx); err != nil {
		m.logger.Warn("error saving snapshots after rebuild", "err", err)
	}
	return nil
}

// ReembedAll marks every active chunk's embedding pending and schedules
// regeneration. Used after switching embedding models.
func (m *Manager) ReembedAll(ctx context.Context) (int, error) {
	var ids []core.ID
	err := m.chunkRepository.ForEachActive(ctx, func(chunk *core.Chunk) error {
		chunk.Embedding = core.Embedding{Model: m.modelName, State: core.EmbeddingPending}
		if _, updateErr := m.chunkRepository.UpdateChunks(ctx, chunk); updateErr != nil {
			return updateErr
		}
		ids = append(ids, chunk.Id)
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.vec.Load().Reset()
	for _, id := range ids {
		m.enqueueEmbedding(id)
	}

	m.logger.Info("scheduled re-embedding", "chunks", len(ids))
	return len(ids), nil
}

// Release stops the embedding workers. Queued jobs that have not started are
// dropped; their chunks remain pending in the store.
func (m *Manager) Release() {
	if m.pool != nil {
		m.pool.Release()
	}
}
