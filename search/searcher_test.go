package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/retrievit/ai"
	"github.com/poiesic/retrievit/ai/mock"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/manager"
	"github.com/poiesic/retrievit/storage"
	storagebadger "github.com/poiesic/retrievit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

type searchHarness struct {
	searcher *Searcher
	repo     storage.ChunkRepository
	indexes  *manager.Manager
	embedder *mock.MockEmbedder

	// vectors maps exact text to a hand-crafted embedding, letting tests
	// control the semantic axis of each chunk. Unlisted texts fall back to
	// hash-derived vectors.
	vectors map[string][]float32
}

func newSearchHarness(t *testing.T) *searchHarness {
	t.Helper()

	chunkRepo, snapshotRepo, backend, err := storagebadger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		backend.Close()
	})

	h := &searchHarness{
		repo:     chunkRepo,
		embedder: mock.NewMockEmbedder(testDimension),
		vectors:  make(map[string][]float32),
	}
	h.embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		if vec, ok := h.vectors[text]; ok {
			return vec, nil
		}
		return mock.DeterministicVector(text, testDimension), nil
	}

	h.indexes, err = manager.New(chunkRepo, snapshotRepo, h.embedder, testDimension,
		manager.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(h.indexes.Release)

	h.searcher, err = NewSearcher(chunkRepo, h.indexes, h.embedder)
	require.NoError(t, err)

	return h
}

// addChunk stores and indexes a chunk, optionally pinning its embedding to
// the given vector.
func (h *searchHarness) addChunk(t *testing.T, position int, text string, vec []float32) *core.Chunk {
	t.Helper()

	if vec != nil {
		h.vectors[text] = vec
	}
	chunk := &core.Chunk{
		Source: core.SourceRef{Owner: "notes", Position: position},
		Text:   text,
		Kind:   core.KindDocumentFragment,
	}
	added, err := h.repo.AddChunks(context.Background(), chunk)
	require.NoError(t, err)
	require.NoError(t, h.indexes.Apply(context.Background(), manager.Created{Chunk: added[0]}))
	return added[0]
}

func (h *searchHarness) waitForEmbeddings(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.indexes.WaitForEmbeddings(ctx))
}

func TestNewSearcherValidation(t *testing.T) {
	h := newSearchHarness(t)

	t.Run("nil chunk repository", func(t *testing.T) {
		_, err := NewSearcher(nil, h.indexes, h.embedder)
		assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	})

	t.Run("nil index manager", func(t *testing.T) {
		_, err := NewSearcher(h.repo, nil, h.embedder)
		assert.ErrorIs(t, err, ErrIndexManagerRequired)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(h.repo, h.indexes, nil)
		assert.ErrorIs(t, err, ErrEmbedderRequired)
	})
}

func TestSearchArgumentValidation(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	t.Run("non-positive limit", func(t *testing.T) {
		_, err := h.searcher.Search(ctx, "query", 0, DefaultWeights())
		assert.ErrorIs(t, err, ErrInvalidLimit)

		_, err = h.searcher.SearchLexical(ctx, "query", -1)
		assert.ErrorIs(t, err, ErrInvalidLimit)
	})

	t.Run("invalid weights", func(t *testing.T) {
		_, err := h.searcher.Search(ctx, "query", 5, Weights{Lexical: 2, Vector: 0.5})
		assert.ErrorIs(t, err, ErrInvalidWeights)
	})

	t.Run("blank query returns empty results", func(t *testing.T) {
		results, err := h.searcher.Search(ctx, "   ", 5, DefaultWeights())
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, 0, h.embedder.CallCount(), "blank query should not hit the embedder")
	})
}

func TestHybridSearchRanking(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	brand := h.addChunk(t, 0,
		"brand strategy for SaaS",
		[]float32{1, 0.1, 0, 0})
	revenue := h.addChunk(t, 1,
		"quarterly revenue report",
		[]float32{0.1, 1, 0, 0})
	social := h.addChunk(t, 2,
		"social media strategy",
		[]float32{0.9, 0.2, 0, 0})
	h.waitForEmbeddings(t)

	h.vectors["marketing strategy"] = []float32{1, 0, 0, 0}
	results, err := h.searcher.Search(ctx, "marketing strategy", 3, Weights{Lexical: 0.35, Vector: 0.65})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Both strategy chunks must outrank the revenue report
	topIds := []core.ID{results[0].ChunkId, results[1].ChunkId}
	assert.Contains(t, topIds, brand.Id)
	assert.Contains(t, topIds, social.Id)
	assert.Equal(t, revenue.Id, results[2].ChunkId)

	// Scores are ordered and carry the raw components
	assert.GreaterOrEqual(t, results[0].FusedScore, results[1].FusedScore)
	assert.GreaterOrEqual(t, results[1].FusedScore, results[2].FusedScore)
	assert.Greater(t, results[0].LexicalScore+results[0].VectorScore, 0.0)
	assert.NotEmpty(t, results[0].Snippet)
	assert.Equal(t, "notes", results[0].Source.Owner)
}

func TestWeightPurity(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	// keyword-heavy chunk, semantically orthogonal to the query
	keyword := h.addChunk(t, 0,
		"marketing strategy marketing strategy marketing strategy",
		[]float32{0, 0, 1, 0})
	// semantically aligned chunk with no query terms at all
	semantic := h.addChunk(t, 1,
		"growing the brand and winning new customers next quarter",
		[]float32{1, 0, 0, 0})
	h.waitForEmbeddings(t)

	h.vectors["marketing strategy"] = []float32{1, 0, 0, 0}

	t.Run("pure lexical", func(t *testing.T) {
		results, err := h.searcher.Search(ctx, "marketing strategy", 5, Weights{Lexical: 1, Vector: 0})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, keyword.Id, results[0].ChunkId)
		for _, r := range results {
			assert.NotEqual(t, semantic.Id, r.ChunkId, "vector-only match must not appear")
		}
	})

	t.Run("pure vector", func(t *testing.T) {
		results, err := h.searcher.Search(ctx, "marketing strategy", 5, Weights{Lexical: 0, Vector: 1})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, semantic.Id, results[0].ChunkId)
	})
}

func TestSearchSkipsTombstonedChunks(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	keep := h.addChunk(t, 0, "durable marketing insight", []float32{1, 0, 0, 0})
	drop := h.addChunk(t, 1, "stale marketing insight", []float32{1, 0, 0, 0})
	h.waitForEmbeddings(t)

	// Tombstone in the store without telling the indexes; hydration must
	// still filter it out.
	require.NoError(t, h.repo.TombstoneChunks(ctx, drop.Id))

	h.vectors["marketing"] = []float32{1, 0, 0, 0}
	results, err := h.searcher.Search(ctx, "marketing", 10, DefaultWeights())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep.Id, results[0].ChunkId)
}

func TestSearchKindFilter(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	doc := h.addChunk(t, 0, "marketing strategy document", []float32{1, 0, 0, 0})

	turn := &core.Chunk{
		Source: core.SourceRef{Owner: "conv-1", Position: 0},
		Text:   "we discussed the marketing strategy today",
		Kind:   core.KindConversationTurn,
	}
	h.vectors[turn.Text] = []float32{1, 0, 0, 0}
	added, err := h.repo.AddChunks(ctx, turn)
	require.NoError(t, err)
	require.NoError(t, h.indexes.Apply(ctx, manager.Created{Chunk: added[0]}))
	h.waitForEmbeddings(t)

	h.vectors["marketing strategy"] = []float32{1, 0, 0, 0}

	t.Run("unfiltered returns both kinds", func(t *testing.T) {
		results, err := h.searcher.Search(ctx, "marketing strategy", 10, DefaultWeights())
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("documents only", func(t *testing.T) {
		results, err := h.searcher.Search(ctx, "marketing strategy", 10, DefaultWeights(),
			WithKinds(core.KindDocumentFragment))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, doc.Id, results[0].ChunkId)
	})

	t.Run("conversation turns only, lexical path", func(t *testing.T) {
		results, err := h.searcher.SearchLexical(ctx, "marketing strategy", 10,
			WithKinds(core.KindConversationTurn))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, added[0].Id, results[0].ChunkId)
	})
}

func TestSearchEmbeddingOutage(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	h.addChunk(t, 0, "marketing strategy notes", []float32{1, 0, 0, 0})
	h.waitForEmbeddings(t)

	h.embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("%w: connection refused", ai.ErrUnavailable)
	}

	t.Run("hybrid search fails", func(t *testing.T) {
		_, err := h.searcher.Search(ctx, "marketing", 5, DefaultWeights())
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	})

	t.Run("lexical degraded mode still answers", func(t *testing.T) {
		results, err := h.searcher.SearchLexical(ctx, "marketing", 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 0.0, results[0].VectorScore)
	})

	t.Run("zero vector weight skips the embedder", func(t *testing.T) {
		results, err := h.searcher.Search(ctx, "marketing", 5, Weights{Lexical: 1, Vector: 0})
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestSearchLimit(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		h.addChunk(t, i, fmt.Sprintf("shared marketing topic number %d", i), nil)
	}
	h.waitForEmbeddings(t)

	results, err := h.searcher.Search(ctx, "marketing topic", 3, DefaultWeights())
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchNoMatches(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	results, err := h.searcher.Search(ctx, "anything at all", 5, DefaultWeights())
	require.NoError(t, err)
	assert.Empty(t, results)
}

type recordingMonitor struct {
	queryId    string
	query      string
	lexical    int
	vector     int
	fused      int
	finished   int
	finalCount int
}

func (r *recordingMonitor) Start(queryId, query string) {
	r.queryId = queryId
	r.query = query
}
func (r *recordingMonitor) AfterLexicalSearch(candidates []core.ScoredChunk) { r.lexical = len(candidates) }
func (r *recordingMonitor) AfterVectorSearch(candidates []core.ScoredChunk)  { r.vector = len(candidates) }
func (r *recordingMonitor) AfterFusion(hits []FusedHit)                      { r.fused = len(hits) }
func (r *recordingMonitor) Finish(results []*core.SearchResult) {
	r.finished++
	r.finalCount = len(results)
}

func TestSearchWithMonitor(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	h.addChunk(t, 0, "observable marketing content", []float32{1, 0, 0, 0})
	h.waitForEmbeddings(t)

	monitor := &recordingMonitor{}
	h.vectors["marketing"] = []float32{1, 0, 0, 0}
	results, err := h.searcher.SearchWithMonitor(ctx, "marketing", 5, DefaultWeights(), monitor)
	require.NoError(t, err)

	assert.NotEmpty(t, monitor.queryId)
	assert.Equal(t, "marketing", monitor.query)
	assert.Equal(t, 1, monitor.lexical)
	assert.Equal(t, 1, monitor.vector)
	assert.Equal(t, 1, monitor.fused)
	assert.Equal(t, 1, monitor.finished)
	assert.Equal(t, len(results), monitor.finalCount)
}
