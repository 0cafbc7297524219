package vector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/poiesic/retrievit/core"
)

// Index holds unit-normalized embedding vectors keyed by chunk id and
// answers nearest-neighbor queries by exhaustive cosine scan.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[core.ID][]float32
}

// New creates an empty vector index for embeddings of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidDimension, dimension)
	}
	return &Index{
		dimension: dimension,
		vectors:   make(map[core.ID][]float32),
	}, nil
}

// Dimension returns the vector dimension the index accepts.
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Upsert stores the vector under the chunk id, replacing any previous one.
// The vector is normalized on insert. A dimension mismatch is rejected
// without modifying the index.
func (idx *Index) Upsert(id core.ID, vec []float32) error {
	if len(vec) != idx.dimension {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(vec), idx.dimension)
	}

	normalized := Normalize(vec)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[id] = normalized
	return nil
}

// Remove drops the chunk's vector. Removing an absent id is a no-op.
func (idx *Index) Remove(id core.ID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, id)
}

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Reset drops all stored vectors.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = make(map[core.ID][]float32)
}

// Search returns up to limit chunks ranked by cosine similarity to the
// query vector, best first. Ties break on ascending id. The query is
// normalized before scoring.
func (idx *Index) Search(query []float32, limit int) ([]core.ScoredChunk, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(query), idx.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	normalized := Normalize(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]core.ScoredChunk, 0, len(idx.vectors))
	for id, vec := range idx.vectors {
		results = append(results, core.ScoredChunk{
			ChunkId: id,
			Score:   dot(normalized, vec),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkId < results[j].ChunkId
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
