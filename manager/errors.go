package manager

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrSnapshotRepositoryRequired is returned when a snapshot repository is not provided.
	ErrSnapshotRepositoryRequired = errors.New("snapshot repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
