// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package retrievit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/retrievit/ai"
	"github.com/poiesic/retrievit/ai/openai"
	"github.com/poiesic/retrievit/chunker"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/index/lexical"
	"github.com/poiesic/retrievit/index/vector"
	"github.com/poiesic/retrievit/manager"
	"github.com/poiesic/retrievit/search"
	"github.com/poiesic/retrievit/storage"
	"github.com/poiesic/retrievit/storage/badger"
)

// Engine is the top-level facade over the chunk store, the derived indexes,
// and hybrid search. Content flows in through NotifyContentChanged and comes
// back out, ranked, through Search.
type Engine struct {
	backend      *badger.Backend
	chunkRepo    storage.ChunkRepository
	snapshotRepo storage.SnapshotRepository
	chunker      *chunker.Chunker
	embedder     ai.Embedder
	indexes      *manager.Manager
	searcher     *search.Searcher

	// sourceLocks serializes re-chunking per source owner so two concurrent
	// notifications for the same owner cannot interleave their diffs.
	sourceLocks sync.Map

	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	inMemory    bool
	aiConfig    *ai.Config
	dimension   int
	embedder    ai.Embedder
	chunkerOpts []chunker.Option
	poolSize    int
	logger      *slog.Logger
}

// WithInMemory keeps all storage in memory. Intended for tests and
// ephemeral workloads; nothing survives Close.
func WithInMemory() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithAIConfig sets the embedding service configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) EngineOption {
	return func(o *engineOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithDimension overrides the embedding dimension of the AI configuration.
// Applied after WithAIConfig regardless of option order.
func WithDimension(dimension int) EngineOption {
	return func(o *engineOptions) {
		o.dimension = dimension
	}
}

// WithEmbedder injects an embedder directly, bypassing the OpenAI client.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithChunking overrides the chunk length and overlap.
func WithChunking(maxLen, overlap int) EngineOption {
	return func(o *engineOptions) {
		o.chunkerOpts = []chunker.Option{
			chunker.WithMaxLen(maxLen),
			chunker.WithOverlap(overlap),
		}
	}
}

// WithPoolSize sets the embedding worker pool size.
func WithPoolSize(size int) EngineOption {
	return func(o *engineOptions) {
		o.poolSize = size
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewEngine opens (or creates) an engine at filePath. Index snapshots are
// loaded when they match the store; otherwise the indexes are rebuilt before
// NewEngine returns.
func NewEngine(filePath string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.dimension > 0 {
		options.aiConfig.Dimension = options.dimension
	}

	if err := options.aiConfig.Validate(); err != nil {
		return nil, err
	}

	splitter, err := chunker.New(options.chunkerOpts...)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	chunkRepo, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	snapshotRepo := badger.NewSnapshotRepository(backend)

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			chunkRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	managerOpts := []manager.Option{
		manager.WithModelName(options.aiConfig.Model),
		manager.WithLogger(options.logger),
	}
	if options.poolSize > 0 {
		managerOpts = append(managerOpts, manager.WithPoolSize(options.poolSize))
	}
	indexes, err := manager.New(chunkRepo, snapshotRepo, embedder, options.aiConfig.Dimension, managerOpts...)
	if err != nil {
		chunkRepo.Close()
		backend.Close()
		return nil, err
	}

	searcher, err := search.NewSearcher(chunkRepo, indexes, embedder, search.WithLogger(options.logger))
	if err != nil {
		indexes.Release()
		chunkRepo.Close()
		backend.Close()
		return nil, err
	}

	e := &Engine{
		backend:      backend,
		chunkRepo:    chunkRepo,
		snapshotRepo: snapshotRepo,
		chunker:      splitter,
		embedder:     embedder,
		indexes:      indexes,
		searcher:     searcher,
		logger:       options.logger,
	}

	if err := indexes.LoadOrRebuild(context.Background()); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

// NotifyContentChanged replaces the indexed content of a source owner.
// The new content is chunked and diffed against the owner's current chunks
// by position: unchanged chunks keep their identity (and embedding), changed
// or removed positions are tombstoned, and new text is stored and indexed.
// Passing empty content removes the source entirely.
func (e *Engine) NotifyContentChanged(ctx context.Context, owner, content string, kind core.ChunkKind) error {
	if err := core.ValidateKind(kind); err != nil {
		return err
	}

	lock := e.sourceLock(owner)
	lock.Lock()
	defer lock.Unlock()

	desired := e.chunker.Split(owner, content, kind)

	existing, err := e.chunkRepo.GetSourceChunks(ctx, owner)
	if err != nil {
		return err
	}
	byPosition := make(map[int]*core.Chunk, len(existing))
	for _, chunk := range existing {
		byPosition[chunk.Source.Position] = chunk
	}

	keep := make(map[core.ID]bool)
	var toAdd []*core.Chunk
	for i := range desired {
		if prior, ok := byPosition[desired[i].Source.Position]; ok &&
			prior.Text == desired[i].Text && prior.Kind == desired[i].Kind {
			keep[prior.Id] = true
			continue
		}
		toAdd = append(toAdd, &desired[i])
	}

	var toRemove []core.ID
	for _, chunk := range existing {
		if !keep[chunk.Id] {
			toRemove = append(toRemove, chunk.Id)
		}
	}

	var events []manager.Event

	if len(toRemove) > 0 {
		if err := e.chunkRepo.TombstoneChunks(ctx, toRemove...); err != nil {
			return err
		}
		for _, id := range toRemove {
			events = append(events, manager.Deleted{Id: id})
		}
	}

	if len(toAdd) > 0 {
		added, err := e.chunkRepo.AddChunks(ctx, toAdd...)
		if err != nil {
			// Removals already committed; surface the partial failure but
			// still index what happened.
			applyErr := e.indexes.Apply(ctx, events...)
			return errors.Join(err, applyErr)
		}
		for _, chunk := range added {
			events = append(events, manager.Created{Chunk: chunk})
		}
	}

	e.logger.Debug("source content changed",
		"owner", owner,
		"chunks", len(desired),
		"added", len(toAdd),
		"removed", len(toRemove),
		"kept", len(keep))

	return e.indexes.Apply(ctx, events...)
}

// RemoveSource tombstones every chunk of the owner and drops them from the
// indexes.
func (e *Engine) RemoveSource(ctx context.Context, owner string) error {
	lock := e.sourceLock(owner)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.chunkRepo.GetSourceChunks(ctx, owner)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	ids := make([]core.ID, len(existing))
	events := make([]manager.Event, len(existing))
	for i, chunk := range existing {
		ids[i] = chunk.Id
		events[i] = manager.Deleted{Id: chunk.Id}
	}

	if err := e.chunkRepo.TombstoneChunks(ctx, ids...); err != nil {
		return err
	}

	e.logger.Debug("source removed", "owner", owner, "chunks", len(ids))
	return e.indexes.Apply(ctx, events...)
}

// Search runs a hybrid query. See search.Searcher.Search.
func (e *Engine) Search(ctx context.Context, query string, limit int, weights search.Weights, opts ...search.QueryOption) ([]*core.SearchResult, error) {
	return e.searcher.Search(ctx, query, limit, weights, opts...)
}

// SearchLexical runs a keyword-only query, usable while the embedding
// service is down.
func (e *Engine) SearchLexical(ctx context.Context, query string, limit int, opts ...search.QueryOption) ([]*core.SearchResult, error) {
	return e.searcher.SearchLexical(ctx, query, limit, opts...)
}

// Searcher returns the underlying searcher for monitored queries.
func (e *Engine) Searcher() *search.Searcher {
	return e.searcher
}

// ChunkRepository exposes the authoritative chunk store.
func (e *Engine) ChunkRepository() storage.ChunkRepository {
	return e.chunkRepo
}

// RebuildAll discards the derived indexes and reconstructs them from the
// chunk store.
func (e *Engine) RebuildAll(ctx context.Context) error {
	return e.indexes.RebuildAll(ctx)
}

// ReembedAll regenerates every active chunk's embedding. Used after
// switching embedding models.
func (e *Engine) ReembedAll(ctx context.Context) (int, error) {
	return e.indexes.ReembedAll(ctx)
}

// PurgeTombstoned physically removes tombstoned chunks from the store.
func (e *Engine) PurgeTombstoned(ctx context.Context) (int, error) {
	return e.chunkRepo.PurgeTombstoned(ctx)
}

// WaitForIndexing blocks until all scheduled embedding work has finished or
// the context is done.
func (e *Engine) WaitForIndexing(ctx context.Context) error {
	return e.indexes.WaitForEmbeddings(ctx)
}

// Stats describes the current state of the store and indexes.
type Stats struct {
	ActiveChunks      int
	TombstonedChunks  int
	LexicalDocuments  int
	Vectors           int
	PendingEmbeddings int
	Dimension         int
}

// Stats reports store and index counters.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	active, err := e.chunkRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	tombstoned, err := e.chunkRepo.CountTombstoned(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		ActiveChunks:      active,
		TombstonedChunks:  tombstoned,
		LexicalDocuments:  e.lexical().Len(),
		Vectors:           e.vector().Len(),
		PendingEmbeddings: e.indexes.PendingEmbeddings(),
		Dimension:         e.indexes.Dimension(),
	}, nil
}

func (e *Engine) lexical() *lexical.Index { return e.indexes.Lexical() }
func (e *Engine) vector() *vector.Index   { return e.indexes.Vector() }

func (e *Engine) sourceLock(owner string) *sync.Mutex {
	lock, _ := e.sourceLocks.LoadOrStore(owner, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Close drains pending embedding work, saves index snapshots, and releases
// all resources. The engine must not be used afterwards.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.indexes.WaitForEmbeddings(ctx); err != nil {
		e.logger.Warn("closing with embedding work still pending", "pending", e.indexes.PendingEmbeddings())
	}
	if err := e.indexes.SaveSnapshots(ctx); err != nil {
		e.logger.Error("error saving index snapshots", "err", err)
	}
	e.indexes.Release()

	if err := e.chunkRepo.Close(); err != nil {
		e.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
