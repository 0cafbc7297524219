package lexical

import (
	"math"
	"sort"
	"sync"

	"github.com/poiesic/retrievit/core"
)

// BM25 parameters. k1 controls term frequency saturation, b controls
// document length normalization.
const (
	k1 = 1.2
	b  = 0.75
)

type docEntry struct {
	terms  map[string]int
	length int
}

// Index is an inverted index over chunk text with BM25 ranking.
type Index struct {
	mu         sync.RWMutex
	docs       map[core.ID]*docEntry
	postings   map[string]map[core.ID]int
	totalTerms int
}

// New creates an empty lexical index.
func New() *Index {
	return &Index{
		docs:     make(map[core.ID]*docEntry),
		postings: make(map[string]map[core.ID]int),
	}
}

// Add indexes the text under the given chunk id. Adding an id that is
// already present replaces its previous text.
func (idx *Index) Add(id core.ID, text string) {
	terms := Tokenize(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)

	entry := &docEntry{
		terms:  make(map[string]int, len(terms)),
		length: len(terms),
	}
	for _, term := range terms {
		entry.terms[term]++
	}

	idx.docs[id] = entry
	idx.totalTerms += entry.length
	for term, freq := range entry.terms {
		posting := idx.postings[term]
		if posting == nil {
			posting = make(map[core.ID]int)
			idx.postings[term] = posting
		}
		posting[id] = freq
	}
}

// Remove drops the chunk from the index. Removing an absent id is a no-op.
func (idx *Index) Remove(id core.ID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id core.ID) {
	entry, ok := idx.docs[id]
	if !ok {
		return
	}

	for term := range entry.terms {
		posting := idx.postings[term]
		delete(posting, id)
		if len(posting) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalTerms -= entry.length
	delete(idx.docs, id)
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Reset drops all indexed content.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = make(map[core.ID]*docEntry)
	idx.postings = make(map[string]map[core.ID]int)
	idx.totalTerms = 0
}

// Search scores every chunk sharing at least one term with the query and
// returns up to limit results, best first. Ties break on ascending id so
// results are deterministic.
func (idx *Index) Search(query string, limit int) []core.ScoredChunk {
	if limit <= 0 {
		return nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	unique := make(map[string]bool, len(terms))
	for _, term := range terms {
		unique[term] = true
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalTerms) / float64(n)

	scores := make(map[core.ID]float64)
	for term := range unique {
		posting := idx.postings[term]
		if len(posting) == 0 {
			continue
		}

		df := float64(len(posting))
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))

		for id, freq := range posting {
			tf := float64(freq)
			docLen := float64(idx.docs[id].length)
			norm := tf + k1*(1-b+b*docLen/avgLen)
			scores[id] += idf * tf * (k1 + 1) / norm
		}
	}

	results := make([]core.ScoredChunk, 0, len(scores))
	for id, score := range scores {
		results = append(results, core.ScoredChunk{ChunkId: id, Score: score})
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
	return results
}
