package search

import (
	"sort"

	"github.com/poiesic/retrievit/core"
)

// FusedHit is a candidate chunk with its combined score and the raw signal
// scores it was fused from. A zero raw score means the chunk was absent from
// that signal's candidate set.
type FusedHit struct {
	ChunkId      core.ID
	Score        float64
	LexicalScore float64
	VectorScore  float64
}

// Fuse combines lexical and vector candidates into one weighted ranking.
//
// Each candidate set is min-max normalized independently so the two signals
// are comparable regardless of their native score ranges. A chunk missing
// from one set contributes zero for that signal. When every score in a set
// is identical the normalized value is 1.0, since each of those candidates
// is that signal's best answer. Results are ordered by fused score
// descending, ties on ascending id.
func Fuse(lexical, vector []core.ScoredChunk, weights Weights) []FusedHit {
	lexNorm := normalize(lexical)
	vecNorm := normalize(vector)

	hits := make(map[core.ID]*FusedHit, len(lexical)+len(vector))
	for _, candidate := range lexical {
		hits[candidate.ChunkId] = &FusedHit{
			ChunkId:      candidate.ChunkId,
			LexicalScore: candidate.Score,
		}
	}
	for _, candidate := range vector {
		hit := hits[candidate.ChunkId]
		if hit == nil {
			hit = &FusedHit{ChunkId: candidate.ChunkId}
			hits[candidate.ChunkId] = hit
		}
		hit.VectorScore = candidate.Score
	}

	results := make([]FusedHit, 0, len(hits))
	for id, hit := range hits {
		hit.Score = weights.Lexical*lexNorm[id] + weights.Vector*vecNorm[id]
		results = append(results, *hit)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkId < results[j].ChunkId
	})
	return results
}

// normalize maps scores into [0, 1] by min-max scaling within the set.
func normalize(candidates []core.ScoredChunk) map[core.ID]float64 {
	normalized := make(map[core.ID]float64, len(candidates))
	if len(candidates) == 0 {
		return normalized
	}

	min, max := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}

	if max == min {
		for _, c := range candidates {
			normalized[c.ChunkId] = 1.0
		}
		return normalized
	}

	span := max - min
	for _, c := range candidates {
		normalized[c.ChunkId] = (c.Score - min) / span
	}
	return normalized
}
