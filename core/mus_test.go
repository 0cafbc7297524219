package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMUSRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	chunk := Chunk{
		Id:     42,
		Source: SourceRef{Owner: "doc-7", Position: 3},
		Text:   "social media strategy for the spring launch",
		Kind:   KindDocumentFragment,
		State:  StateActive,
		Embedding: Embedding{
			Vector: []float32{0.1, -0.5, 0.85},
			Model:  "text-embedding-3-small",
			State:  EmbeddingReady,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	buf := make([]byte, ChunkMUS.Size(chunk))
	n := ChunkMUS.Marshal(chunk, buf)
	assert.Equal(t, len(buf), n)

	decoded, n, err := ChunkMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, chunk, decoded)
}

func TestChunkMUSPendingEmbedding(t *testing.T) {
	chunk := Chunk{
		Id:        1,
		Source:    SourceRef{Owner: "conv-1", Position: 0},
		Text:      "hello",
		Kind:      KindConversationTurn,
		State:     StateActive,
		Embedding: Embedding{State: EmbeddingPending},
		CreatedAt: time.UnixMicro(1).UTC(),
		UpdatedAt: time.UnixMicro(2).UTC(),
	}

	buf := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, buf)

	decoded, _, err := ChunkMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Nil(t, decoded.Embedding.Vector)
	assert.Equal(t, EmbeddingPending, decoded.Embedding.State)
}

func TestSnapshotManifestMUSRoundTrip(t *testing.T) {
	manifest := SnapshotManifest{
		ChunkCount: 1000,
		Checksum:   []byte{0xde, 0xad, 0xbe, 0xef},
		Dimension:  1536,
		SavedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	buf := make([]byte, SnapshotManifestMUS.Size(manifest))
	SnapshotManifestMUS.Marshal(manifest, buf)

	decoded, _, err := SnapshotManifestMUS.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, manifest, decoded)
}

func TestChunkMUSTruncated(t *testing.T) {
	chunk := Chunk{
		Id:     7,
		Source: SourceRef{Owner: "conv-2", Position: 1},
		Text:   "truncate me",
		Kind:   KindConversationTurn,
		State:  StateActive,
	}
	buf := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, buf)

	_, _, err := ChunkMUS.Unmarshal(buf[:len(buf)/2])
	assert.Error(t, err)
}
