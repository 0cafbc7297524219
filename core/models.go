package core

import "time"

// ID is a unique identifier for chunks.
// IDs are assigned monotonically from a database sequence and never reused.
type ID uint64

// ChunkKind discriminates the type of content a chunk was derived from.
type ChunkKind int

const (
	// KindConversationTurn is a chunk cut from a conversation message.
	KindConversationTurn ChunkKind = iota + 1
	// KindDocumentFragment is a chunk cut from a document body.
	KindDocumentFragment
)

// String returns the kind's wire name, used for filtering and CLI flags.
func (k ChunkKind) String() string {
	switch k {
	case KindConversationTurn:
		return "conversation"
	case KindDocumentFragment:
		return "document"
	default:
		return "unknown"
	}
}

// ParseChunkKind maps a wire name back to a ChunkKind.
func ParseChunkKind(s string) (ChunkKind, error) {
	switch s {
	case "conversation":
		return KindConversationTurn, nil
	case "document":
		return KindDocumentFragment, nil
	default:
		return 0, ErrInvalidKind
	}
}

// ChunkState tracks the lifecycle of a chunk in the store.
// Derived indexes must reflect active chunks and never return tombstoned ones.
type ChunkState int

const (
	// StateActive marks a chunk that is current and searchable.
	StateActive ChunkState = iota + 1
	// StateTombstoned marks a chunk that was deleted or superseded by a
	// re-chunk. Tombstoned chunks are unsearchable immediately; physical
	// removal is deferred to PurgeTombstoned.
	StateTombstoned
)

// EmbeddingState tracks the asynchronous embedding lifecycle of a chunk.
// A chunk is lexically searchable as soon as it is active; it becomes
// vector-searchable only once its embedding is ready.
type EmbeddingState int

const (
	// EmbeddingPending means the chunk has no embedding yet.
	EmbeddingPending EmbeddingState = iota + 1
	// EmbeddingReady means the embedding was generated and indexed.
	EmbeddingReady
	// EmbeddingFailed means embedding generation failed permanently
	// (retries exhausted or the input was rejected).
	EmbeddingFailed
)

// SourceRef identifies the owning content source of a chunk plus the chunk's
// positional index within that source. Positions increase monotonically so
// re-chunking can be diffed against prior chunks by position.
type SourceRef struct {
	Owner    string
	Position int
}

// Embedding is the vector representation of a chunk's text, owned 1:1 by the
// chunk. Vectors are stored unit-normalized, so inner product equals cosine
// similarity. Model records which embedding model produced the vector.
type Embedding struct {
	Vector []float32
	Model  string
	State  EmbeddingState
}

// Chunk is the atomic unit of retrievable content and the authoritative
// record every derived index is rebuilt from.
//
// A chunk's Text is immutable once stored: any edit to the source content
// tombstones the chunk and creates a new one with a new ID, so embeddings are
// never stale relative to their text.
type Chunk struct {
	Id        ID
	Source    SourceRef
	Text      string
	Kind      ChunkKind
	State     ChunkState
	Embedding Embedding
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the chunk is in the active lifecycle state.
func (c *Chunk) Active() bool {
	return c.State == StateActive
}

// ScoredChunk is a (chunk id, relevance score) pair produced by a single
// index. Higher scores are better; ties are broken by ascending id.
type ScoredChunk struct {
	ChunkId ID
	Score   float64
}

// SearchResult is a fused search hit returned to callers. Both the fused
// score and the raw component scores are exposed so a caller can audit which
// signal drove the result.
type SearchResult struct {
	ChunkId      ID
	Source       SourceRef
	Kind         ChunkKind
	Snippet      string
	FusedScore   float64
	LexicalScore float64
	VectorScore  float64
}

// SnapshotManifest describes a persisted derived-index snapshot. On load the
// manifest is validated against the chunk store's current active count and
// checksum; any mismatch means the snapshot cannot be trusted and the index
// is rebuilt from the store instead.
type SnapshotManifest struct {
	ChunkCount int
	Checksum   []byte
	Dimension  int
	SavedAt    time.Time
}
