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


package vector

import (
	"fmt"
	"math"
	"sort"

	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/retrievit/core"
)

// Snapshot encodes the full index state into a compact binary payload.
// Vectors are written in ascending id order so identical contents always
// produce identical bytes.
func (idx *Index) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]core.ID, 0, len(idx.vectors))
	size := varint.Int.Size(idx.dimension) + varint.Int.Size(len(idx.vectors))
	for id, vec := range idx.vectors {
		ids = append(ids, id)
		size += core.IDMUS.Size(id)
		for _, f := range vec {
			size += varint.Uint32.Size(math.Float32bits(f))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	bs := make([]byte, size)
	n := varint.Int.Marshal(idx.dimension, bs)
	n += varint.Int.Marshal(len(ids), bs[n:])
	for _, id := range ids {
		n += core.IDMUS.Marshal(id, bs[n:])
		for _, f := range idx.vectors[id] {
			n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
		}
	}

	return bs, nil
}

// Restore replaces the index state with the decoded snapshot payload.
// A payload recorded for a different dimension is rejected as corrupt. On
// failure the index is left empty so callers can fall back to a rebuild.
func (idx *Index) Restore(bs []byte) error {
	vectors, err := idx.decodeSnapshot(bs)
	if err != nil {
		idx.Reset()
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = vectors
	return nil
}

func (idx *Index) decodeSnapshot(bs []byte) (map[core.ID][]float32, error) {
	dimension, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, err
	}
	if dimension != idx.dimension {
		return nil, fmt.Errorf("%w: snapshot has %d, index wants %d", core.ErrDimensionMismatch, dimension, idx.dimension)
	}

	count, n1, err := varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("negative vector count %d", count)
	}

	vectors := make(map[core.ID][]float32, count)
	for i := 0; i < count; i++ {
		var id core.ID
		id, n1, err = core.IDMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, err
		}

		vec := make([]float32, dimension)
		for j := 0; j < dimension; j++ {
			var bits uint32
			bits, n1, err = varint.Uint32.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return nil, err
			}
			vec[j] = math.Float32frombits(bits)
		}
		vectors[id] = vec
	}

	return vectors, nil
}
