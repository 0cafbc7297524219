package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/retrievit/core"
)

// Key prefixes for different data types. Every prefix ends in ':' in the
// composed key, so prefix scans never bleed into neighbouring key families.
const (
	chunkRecordPrefix      = "chkrec"
	chunkSourcePrefix      = "chksrc"
	chunkIDSeq             = "chkseq"
	snapshotManifestPrefix = "snpman"
	snapshotDataPrefix     = "snpdat"
)

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkRecordPrefix, id))
}

// chunkKeyPrefix is the scan prefix covering all chunk records.
func chunkKeyPrefix() []byte {
	return []byte(chunkRecordPrefix + ":")
}

// makeSourceKey generates a composite key for the source index.
// Format: prefix:owner\x00position:id, with position and id written in
// BigEndian order so lexicographic sort yields position order. Owners must
// not contain NUL bytes.
func makeSourceKey(owner string, position int, id core.ID) []byte {
	prefix := chunkSourcePrefix + ":" + owner
	buf := make([]byte, len(prefix)+1+16)
	offset := copy(buf, prefix)
	buf[offset] = 0x00
	offset++
	binary.BigEndian.PutUint64(buf[offset:], uint64(position))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeSourcePrefix generates the scan prefix for all chunks of one owner.
func makeSourcePrefix(owner string) []byte {
	prefix := chunkSourcePrefix + ":" + owner
	buf := make([]byte, len(prefix)+1)
	offset := copy(buf, prefix)
	buf[offset] = 0x00
	return buf
}

// makeSnapshotManifestKey generates a key for a snapshot manifest.
func makeSnapshotManifestKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", snapshotManifestPrefix, name))
}

// makeSnapshotDataKey generates a key for snapshot payload bytes.
func makeSnapshotDataKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", snapshotDataPrefix, name))
}
