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


package search

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrIndexManagerRequired is returned when an index manager is not provided.
	ErrIndexManagerRequired = errors.New("index manager required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingUnavailable is returned when the query could not be
	// embedded. Callers can fall back to SearchLexical.
	ErrEmbeddingUnavailable = errors.New("query embedding unavailable")

	// ErrInvalidLimit is returned when the requested result count is not positive.
	ErrInvalidLimit = errors.New("result limit must be positive")

	// ErrInvalidWeights is returned when fusion weights are out of range.
	ErrInvalidWeights = errors.New("invalid fusion weights")
)
