package core

import (
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written mus-format serializers for the domain types. Timestamps are
// encoded with microsecond precision, vectors as raw float32 bits.

var (
	// IDMUS serializes ID values.
	IDMUS = idMUS{}
	// SourceRefMUS serializes SourceRef values.
	SourceRefMUS = sourceRefMUS{}
	// EmbeddingMUS serializes Embedding values.
	EmbeddingMUS = embeddingMUS{}
	// ChunkMUS serializes Chunk values.
	ChunkMUS = chunkMUS{}
	// SnapshotManifestMUS serializes SnapshotManifest values.
	SnapshotManifestMUS = snapshotManifestMUS{}
)

var errTruncated = errors.New("truncated data")

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

type sourceRefMUS struct{}

func (sourceRefMUS) Marshal(v SourceRef, bs []byte) (n int) {
	n = ord.String.Marshal(v.Owner, bs)
	n += varint.Int.Marshal(v.Position, bs[n:])
	return n
}

func (sourceRefMUS) Unmarshal(bs []byte) (v SourceRef, n int, err error) {
	v.Owner, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Position, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (sourceRefMUS) Size(v SourceRef) int {
	return ord.String.Size(v.Owner) + varint.Int.Size(v.Position)
}

type embeddingMUS struct{}

func (embeddingMUS) Marshal(v Embedding, bs []byte) (n int) {
	n = marshalVector(v.Vector, bs)
	n += ord.String.Marshal(v.Model, bs[n:])
	n += varint.Int.Marshal(int(v.State), bs[n:])
	return n
}

func (embeddingMUS) Unmarshal(bs []byte) (v Embedding, n int, err error) {
	v.Vector, n, err = unmarshalVector(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var state int
	state, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	v.State = EmbeddingState(state)
	return
}

func (embeddingMUS) Size(v Embedding) int {
	return sizeVector(v.Vector) + ord.String.Size(v.Model) + varint.Int.Size(int(v.State))
}

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += SourceRefMUS.Marshal(v.Source, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Int.Marshal(int(v.Kind), bs[n:])
	n += varint.Int.Marshal(int(v.State), bs[n:])
	n += EmbeddingMUS.Marshal(v.Embedding, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Source, n1, err = SourceRefMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var kind int
	kind, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Kind = ChunkKind(kind)
	var state int
	state, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.State = ChunkState(state)
	v.Embedding, n1, err = EmbeddingMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CreatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (chunkMUS) Size(v Chunk) int {
	return IDMUS.Size(v.Id) +
		SourceRefMUS.Size(v.Source) +
		ord.String.Size(v.Text) +
		varint.Int.Size(int(v.Kind)) +
		varint.Int.Size(int(v.State)) +
		EmbeddingMUS.Size(v.Embedding) +
		sizeTime(v.CreatedAt) +
		sizeTime(v.UpdatedAt)
}

type snapshotManifestMUS struct{}

func (snapshotManifestMUS) Marshal(v SnapshotManifest, bs []byte) (n int) {
	n = varint.Int.Marshal(v.ChunkCount, bs)
	n += marshalBytes(v.Checksum, bs[n:])
	n += varint.Int.Marshal(v.Dimension, bs[n:])
	n += marshalTime(v.SavedAt, bs[n:])
	return n
}

func (snapshotManifestMUS) Unmarshal(bs []byte) (v SnapshotManifest, n int, err error) {
	v.ChunkCount, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	v.Checksum, n1, err = unmarshalBytes(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Dimension, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SavedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (snapshotManifestMUS) Size(v SnapshotManifest) int {
	return varint.Int.Size(v.ChunkCount) +
		sizeBytes(v.Checksum) +
		varint.Int.Size(v.Dimension) +
		sizeTime(v.SavedAt)
}

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, errTruncated
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		bits, n1, err := varint.Uint32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func sizeVector(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

func marshalBytes(v []byte, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	n += copy(bs[n:], v)
	return n
}

func unmarshalBytes(bs []byte) (v []byte, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || len(bs) < n+length {
		return nil, n, errTruncated
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]byte, length)
	n += copy(v, bs[n:n+length])
	return v, n, nil
}

func sizeBytes(v []byte) int {
	return varint.Int.Size(len(v)) + len(v)
}
