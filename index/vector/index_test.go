package vector

import (
	"math"
	"testing"

	"github.com/poiesic/retrievit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("unit length output", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		v := Normalize([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Empty(t, Normalize(nil))
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []float32{3, 4}
		Normalize(in)
		assert.Equal(t, []float32{3, 4}, in)
	})
}

func TestNewIndex(t *testing.T) {
	t.Run("valid dimension", func(t *testing.T) {
		idx, err := New(4)
		require.NoError(t, err)
		assert.Equal(t, 4, idx.Dimension())
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("invalid dimension", func(t *testing.T) {
		_, err := New(0)
		assert.ErrorIs(t, err, core.ErrInvalidDimension)

		_, err = New(-3)
		assert.ErrorIs(t, err, core.ErrInvalidDimension)
	})
}

func TestIndexUpsert(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(2, []float32{0, 2, 0}))
	assert.Equal(t, 2, idx.Len())

	t.Run("dimension mismatch rejected without partial write", func(t *testing.T) {
		err := idx.Upsert(3, []float32{1, 2})
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
		assert.Equal(t, 2, idx.Len())
	})

	t.Run("replaces existing vector", func(t *testing.T) {
		require.NoError(t, idx.Upsert(1, []float32{0, 0, 5}))
		assert.Equal(t, 2, idx.Len())

		results, err := idx.Search([]float32{0, 0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.ID(1), results[0].ChunkId)
	})
}

func TestIndexRemove(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(1, []float32{1, 0}))
	idx.Remove(1)
	assert.Equal(t, 0, idx.Len())

	// Absent id is a no-op
	idx.Remove(42)
	assert.Equal(t, 0, idx.Len())
}

func TestIndexSearch(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Upsert(3, []float32{1, 1, 0}))

	t.Run("exact vector ranks first with similarity one", func(t *testing.T) {
		results, err := idx.Search([]float32{0, 1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.ID(2), results[0].ChunkId)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("descending similarity order", func(t *testing.T) {
		results, err := idx.Search([]float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, core.ID(1), results[0].ChunkId)
		assert.Equal(t, core.ID(3), results[1].ChunkId)
		assert.Equal(t, core.ID(2), results[2].ChunkId)
	})

	t.Run("limit truncates", func(t *testing.T) {
		results, err := idx.Search([]float32{1, 1, 1}, 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("zero limit", func(t *testing.T) {
		results, err := idx.Search([]float32{1, 0, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := idx.Search([]float32{1, 0}, 10)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("unnormalized query gives same ranking", func(t *testing.T) {
		small, err := idx.Search([]float32{0.1, 0.1, 0}, 10)
		require.NoError(t, err)
		large, err := idx.Search([]float32{100, 100, 0}, 10)
		require.NoError(t, err)
		require.Equal(t, len(small), len(large))
		for i := range small {
			assert.Equal(t, small[i].ChunkId, large[i].ChunkId)
			assert.InDelta(t, small[i].Score, large[i].Score, 1e-6)
		}
	})
}

func TestIndexSearchEmptyIndex(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexDeterministicTieBreak(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(9, []float32{1, 0}))
	require.NoError(t, idx.Upsert(4, []float32{1, 0}))

	for i := 0; i < 5; i++ {
		results, err := idx.Search([]float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, core.ID(4), results[0].ChunkId, "equal scores break on ascending id")
	}
}

func TestIndexSnapshotRoundtrip(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(1, []float32{1, 2, 3}))
	require.NoError(t, idx.Upsert(2, []float32{-1, 0.5, 0}))

	payload, err := idx.Snapshot()
	require.NoError(t, err)

	restored, err := New(3)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(payload))

	assert.Equal(t, idx.Len(), restored.Len())

	want, err := idx.Search([]float32{1, 1, 1}, 10)
	require.NoError(t, err)
	got, err := restored.Search([]float32{1, 1, 1}, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIndexSnapshotDeterministic(t *testing.T) {
	build := func() *Index {
		idx, err := New(2)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(3, []float32{1, 2}))
		require.NoError(t, idx.Upsert(1, []float32{0, 1}))
		return idx
	}

	a, err := build().Snapshot()
	require.NoError(t, err)
	b, err := build().Snapshot()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestIndexRestoreRejectsWrongDimension(t *testing.T) {
	src, err := New(4)
	require.NoError(t, err)
	require.NoError(t, src.Upsert(1, []float32{1, 0, 0, 0}))

	payload, err := src.Snapshot()
	require.NoError(t, err)

	dst, err := New(3)
	require.NoError(t, err)
	require.NoError(t, dst.Upsert(2, []float32{1, 0, 0}))

	err = dst.Restore(payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
	assert.Equal(t, 0, dst.Len(), "failed restore leaves index empty")
}

func TestIndexRestoreCorrupt(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)

	err = idx.Restore([]byte{0x02, 0xff})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestStoredVectorsAreUnitLength(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(1, []float32{30, 40}))

	results, err := idx.Search([]float32{30, 40}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	self := math.Abs(results[0].Score - 1.0)
	assert.Less(t, self, 1e-5)
}
