package retrievit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/retrievit/ai"
	"github.com/poiesic/retrievit/ai/mock"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 8

func testAIConfig() *ai.Config {
	return ai.NewConfig(ai.WithDimension(testDimension))
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *mock.MockEmbedder) {
	t.Helper()

	embedder := mock.NewMockEmbedder(testDimension)
	opts = append([]EngineOption{
		WithInMemory(),
		WithAIConfig(testAIConfig()),
		WithEmbedder(embedder),
	}, opts...)

	engine, err := NewEngine("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return engine, embedder
}

func waitForIndexing(t *testing.T, e *Engine) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.WaitForIndexing(ctx))
}

func TestEngineIngestAndSearch(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	err := engine.NotifyContentChanged(ctx, "notes/marketing.md",
		"Marketing strategy for the launch. Focus on developer communities.",
		core.KindDocumentFragment)
	require.NoError(t, err)

	err = engine.NotifyContentChanged(ctx, "notes/finance.md",
		"Revenue projections and expense budgets for the fiscal year.",
		core.KindDocumentFragment)
	require.NoError(t, err)
	waitForIndexing(t, engine)

	results, err := engine.Search(ctx, "marketing strategy", 5, search.DefaultWeights())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "notes/marketing.md", results[0].Source.Owner)
	assert.Equal(t, core.KindDocumentFragment, results[0].Kind)
	assert.NotEmpty(t, results[0].Snippet)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ActiveChunks)
	assert.Equal(t, 2, stats.LexicalDocuments)
	assert.Equal(t, 2, stats.Vectors)
	assert.Equal(t, testDimension, stats.Dimension)
}

func TestEngineRejectsInvalidKind(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.NotifyContentChanged(context.Background(), "owner", "content", core.ChunkKind(99))
	assert.ErrorIs(t, err, core.ErrInvalidKind)
}

func TestEngineUnchangedContentKeepsChunks(t *testing.T) {
	engine, embedder := newTestEngine(t)
	ctx := context.Background()

	content := "Stable content that will be notified twice without changes."
	require.NoError(t, engine.NotifyContentChanged(ctx, "doc", content, core.KindDocumentFragment))
	waitForIndexing(t, engine)
	calls := embedder.CallCount()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc", content, core.KindDocumentFragment))
	waitForIndexing(t, engine)

	assert.Equal(t, calls, embedder.CallCount(), "unchanged chunks must not be re-embedded")

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveChunks)
	assert.Equal(t, 0, stats.TombstonedChunks)
}

func TestEngineChangedContentReplacesChunks(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Original text about gardening.", core.KindDocumentFragment))
	waitForIndexing(t, engine)

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Replacement text about astronomy.", core.KindDocumentFragment))
	waitForIndexing(t, engine)

	results, err := engine.SearchLexical(ctx, "gardening", 5)
	require.NoError(t, err)
	assert.Empty(t, results, "replaced content must not be searchable")

	results, err = engine.SearchLexical(ctx, "astronomy", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveChunks)
	assert.Equal(t, 1, stats.TombstonedChunks)
}

func TestEngineEmptyContentRemovesSource(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Disposable content.", core.KindDocumentFragment))
	waitForIndexing(t, engine)

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc", "", core.KindDocumentFragment))

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveChunks)
	assert.Equal(t, 1, stats.TombstonedChunks)
}

func TestEngineRemoveSource(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc-a",
		"Content about topic alpha.", core.KindDocumentFragment))
	require.NoError(t, engine.NotifyContentChanged(ctx, "doc-b",
		"Content about topic beta.", core.KindDocumentFragment))
	waitForIndexing(t, engine)

	require.NoError(t, engine.RemoveSource(ctx, "doc-a"))

	results, err := engine.SearchLexical(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.SearchLexical(ctx, "beta", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Removing an unknown source is a no-op
	require.NoError(t, engine.RemoveSource(ctx, "doc-c"))
}

func TestEngineLongContentIsChunked(t *testing.T) {
	engine, _ := newTestEngine(t, WithChunking(120, 20))
	ctx := context.Background()

	long := ""
	for i := 0; i < 30; i++ {
		long += "This sentence pads the document well past a single chunk. "
	}
	require.NoError(t, engine.NotifyContentChanged(ctx, "doc", long, core.KindDocumentFragment))
	waitForIndexing(t, engine)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.ActiveChunks, 1)
	assert.Equal(t, stats.ActiveChunks, stats.Vectors)
}

func TestEnginePurgeTombstoned(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Content destined for deletion.", core.KindDocumentFragment))
	waitForIndexing(t, engine)
	require.NoError(t, engine.RemoveSource(ctx, "doc"))

	purged, err := engine.PurgeTombstoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TombstonedChunks)
}

func TestEngineRebuildAll(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Content surviving a rebuild.", core.KindDocumentFragment))
	waitForIndexing(t, engine)

	require.NoError(t, engine.RebuildAll(ctx))
	waitForIndexing(t, engine)

	results, err := engine.Search(ctx, "rebuild surviving", 5, search.DefaultWeights())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestEngineReembedAll(t *testing.T) {
	engine, embedder := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Content to re-embed.", core.KindDocumentFragment))
	waitForIndexing(t, engine)
	before := embedder.CallCount()

	count, err := engine.ReembedAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	waitForIndexing(t, engine)
	assert.Greater(t, embedder.CallCount(), before)
}

func TestEngineRestartRestoresFromSnapshots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "retrievit")
	ctx := context.Background()

	embedder := mock.NewMockEmbedder(testDimension)
	engine, err := NewEngine(dir,
		WithAIConfig(testAIConfig()),
		WithEmbedder(embedder))
	require.NoError(t, err)

	require.NoError(t, engine.NotifyContentChanged(ctx, "doc",
		"Durable marketing knowledge.", core.KindDocumentFragment))
	waitForIndexing(t, engine)
	require.NoError(t, engine.Close())

	// Reopen: snapshots satisfy the store, so nothing is re-embedded
	restoredEmbedder := mock.NewMockEmbedder(testDimension)
	restored, err := NewEngine(dir,
		WithAIConfig(testAIConfig()),
		WithEmbedder(restoredEmbedder))
	require.NoError(t, err)
	defer restored.Close()

	waitForIndexing(t, restored)
	assert.Equal(t, 0, restoredEmbedder.CallCount())

	results, err := restored.Search(ctx, "marketing knowledge", 5, search.DefaultWeights())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc", results[0].Source.Owner)
}

func TestEngineWithDimension(t *testing.T) {
	embedder := mock.NewMockEmbedder(4)
	engine, err := NewEngine("",
		WithInMemory(),
		WithDimension(4),
		WithEmbedder(embedder),
	)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Dimension)
}

func TestEngineSearchValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Search(ctx, "query", 0, search.DefaultWeights())
	assert.ErrorIs(t, err, search.ErrInvalidLimit)

	_, err = engine.Search(ctx, "query", 5, search.Weights{Lexical: -1, Vector: 1})
	assert.ErrorIs(t, err, search.ErrInvalidWeights)
}
