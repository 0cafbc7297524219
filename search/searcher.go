package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/retrievit/ai"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/manager"
	"github.com/poiesic/retrievit/storage"
	"golang.org/x/sync/errgroup"
)

// defaultWidening is the factor by which the candidate pool exceeds the
// requested result count. A wider pool lets a chunk ranked poorly by one
// signal but strongly by the other still reach fusion.
const defaultWidening = 3

// Searcher runs hybrid queries against the derived indexes and hydrates the
// winners from the chunk store.
type Searcher struct {
	chunkRepository storage.ChunkRepository
	indexes         *manager.Manager
	embedder        ai.Embedder
	widening        int
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithWidening sets the candidate pool multiplier. Values below 1 are
// clamped to 1, which disables widening.
func WithWidening(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			factor = 1
		}
		s.widening = factor
		return nil
	}
}

// queryOptions carries per-query settings.
type queryOptions struct {
	kinds map[core.ChunkKind]struct{}
}

// QueryOption configures a single query.
type QueryOption func(*queryOptions)

// WithKinds restricts results to chunks of the given kinds. With no kinds,
// every kind is eligible.
func WithKinds(kinds ...core.ChunkKind) QueryOption {
	return func(o *queryOptions) {
		if o.kinds == nil {
			o.kinds = make(map[core.ChunkKind]struct{}, len(kinds))
		}
		for _, kind := range kinds {
			o.kinds[kind] = struct{}{}
		}
	}
}

func (o *queryOptions) allows(kind core.ChunkKind) bool {
	if len(o.kinds) == 0 {
		return true
	}
	_, ok := o.kinds[kind]
	return ok
}

// NewSearcher creates a new searcher.
func NewSearcher(
	chunkRepository storage.ChunkRepository,
	indexes *manager.Manager,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if chunkRepository == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if indexes == nil {
		return nil, ErrIndexManagerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		chunkRepository: chunkRepository,
		indexes:         indexes,
		embedder:        embedder,
		widening:        defaultWidening,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search runs a hybrid query with the given fusion weights.
// Returns up to limit results, best first. Fails with
// ErrEmbeddingUnavailable when the query cannot be embedded and the vector
// weight is nonzero; SearchLexical is the degraded fallback.
func (s *Searcher) Search(ctx context.Context, query string, limit int, weights Weights, opts ...QueryOption) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, limit, weights, nil, opts...)
}

// SearchWithMonitor runs a hybrid query with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, limit int, weights Weights, monitor SearchMonitor, opts ...QueryOption) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []*core.SearchResult{}, nil
	}

	var options queryOptions
	for _, opt := range opts {
		opt(&options)
	}

	queryId := uuid.NewString()
	logger := s.logger.With("queryId", queryId)
	monitor.Start(queryId, query)

	poolSize := limit * s.widening

	var (
		lexCandidates []core.ScoredChunk
		vecCandidates []core.ScoredChunk
	)
	g, gctx := errgroup.WithContext(ctx)

	if weights.Lexical > 0 {
		g.Go(func() error {
			lexCandidates = s.indexes.Lexical().Search(query, poolSize)
			return nil
		})
	}
	if weights.Vector > 0 {
		g.Go(func() error {
			embedding, err := s.embedder.EmbedText(gctx, query)
			if err != nil {
				logger.Error("error generating embedding for query", "err", err)
				return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
			}

			vecCandidates, err = s.indexes.Vector().Search(embedding, poolSize)
			if err != nil {
				logger.Error("error querying vector index", "err", err)
				return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	monitor.AfterLexicalSearch(lexCandidates)
	monitor.AfterVectorSearch(vecCandidates)

	hits := Fuse(lexCandidates, vecCandidates, weights)
	monitor.AfterFusion(hits)

	results, err := s.hydrate(ctx, hits, limit, &options)
	if err != nil {
		logger.Error("error hydrating search results", "err", err)
		return nil, err
	}

	logger.Debug("search complete",
		"lexicalCandidates", len(lexCandidates),
		"vectorCandidates", len(vecCandidates),
		"results", len(results))
	monitor.Finish(results)
	return results, nil
}

// SearchLexical runs a keyword-only query. It never touches the embedding
// service, making it the degraded mode while embeddings are unavailable.
func (s *Searcher) SearchLexical(ctx context.Context, query string, limit int, opts ...QueryOption) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if strings.TrimSpace(query) == "" {
		return []*core.SearchResult{}, nil
	}

	var options queryOptions
	for _, opt := range opts {
		opt(&options)
	}

	candidates := s.indexes.Lexical().Search(query, limit*s.widening)
	hits := Fuse(candidates, nil, Weights{Lexical: 1})
	return s.hydrate(ctx, hits, limit, &options)
}

// hydrate resolves fused hits against the chunk store. Chunks that vanished
// or were tombstoned after the candidate scan are silently skipped, so the
// store always has the last word on what a query may return. Kind filtering
// also happens here, after fusion, against the stored chunk.
func (s *Searcher) hydrate(ctx context.Context, hits []FusedHit, limit int, options *queryOptions) ([]*core.SearchResult, error) {
	if len(hits) == 0 {
		return []*core.SearchResult{}, nil
	}

	ids := make([]core.ID, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ChunkId
	}
	chunks, err := s.chunkRepository.GetChunks(ctx, ids...)
	if err != nil {
		return nil, err
	}

	byId := make(map[core.ID]*core.Chunk, len(chunks))
	for _, chunk := range chunks {
		if chunk.Active() {
			byId[chunk.Id] = chunk
		}
	}

	results := make([]*core.SearchResult, 0, limit)
	for _, hit := range hits {
		chunk, ok := byId[hit.ChunkId]
		if !ok {
			continue
		}
		if !options.allows(chunk.Kind) {
			continue
		}
		results = append(results, &core.SearchResult{
			ChunkId:      chunk.Id,
			Source:       chunk.Source,
			Kind:         chunk.Kind,
			Snippet:      buildSnippet(chunk.Text),
			FusedScore:   hit.Score,
			LexicalScore: hit.LexicalScore,
			VectorScore:  hit.VectorScore,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
