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


package lexical

import (
	"fmt"
	"sort"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/retrievit/core"
)

// Snapshot encodes the full index state into a compact binary payload.
// Documents are written in ascending id order so identical contents always
// produce identical bytes.
func (idx *Index) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]core.ID, 0, len(idx.docs))
	size := varint.Int.Size(len(idx.docs))
	for id, entry := range idx.docs {
		ids = append(ids, id)
		size += core.IDMUS.Size(id)
		size += varint.Int.Size(entry.length)
		size += varint.Int.Size(len(entry.terms))
		for term, freq := range entry.terms {
			size += ord.String.Size(term)
			size += varint.Int.Size(freq)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	bs := make([]byte, size)
	n := varint.Int.Marshal(len(ids), bs)
	for _, id := range ids {
		entry := idx.docs[id]
		n += core.IDMUS.Marshal(id, bs[n:])
		n += varint.Int.Marshal(entry.length, bs[n:])
		n += varint.Int.Marshal(len(entry.terms), bs[n:])

		terms := make([]string, 0, len(entry.terms))
		for term := range entry.terms {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			n += ord.String.Marshal(term, bs[n:])
			n += varint.Int.Marshal(entry.terms[term], bs[n:])
		}
	}

	return bs, nil
}

// Restore replaces the index state with the decoded snapshot payload.
// On decode failure the index is left empty so callers can fall back to a
// rebuild from the chunk store.
func (idx *Index) Restore(bs []byte) error {
	docs, totalTerms, err := decodeSnapshot(bs)
	if err != nil {
		idx.Reset()
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	postings := make(map[string]map[core.ID]int)
	for id, entry := range docs {
		for term, freq := range entry.terms {
			posting := postings[term]
			if posting == nil {
				posting = make(map[core.ID]int)
				postings[term] = posting
			}
			posting[id] = freq
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = docs
	idx.postings = postings
	idx.totalTerms = totalTerms
	return nil
}

func decodeSnapshot(bs []byte) (map[core.ID]*docEntry, int, error) {
	count, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, 0, err
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("negative document count %d", count)
	}

	docs := make(map[core.ID]*docEntry, count)
	totalTerms := 0
	for i := 0; i < count; i++ {
		var (
			id core.ID
			n1 int
		)
		id, n1, err = core.IDMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, 0, err
		}

		var length, termCount int
		length, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, 0, err
		}
		termCount, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, 0, err
		}
		if length < 0 || termCount < 0 {
			return nil, 0, fmt.Errorf("invalid document entry for id %d", id)
		}

		entry := &docEntry{
			terms:  make(map[string]int, termCount),
			length: length,
		}
		for j := 0; j < termCount; j++ {
			var term string
			term, n1, err = ord.String.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return nil, 0, err
			}
			var freq int
			freq, n1, err = varint.Int.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return nil, 0, err
			}
			entry.terms[term] = freq
		}

		docs[id] = entry
		totalTerms += length
	}

	return docs, totalTerms, nil
}
