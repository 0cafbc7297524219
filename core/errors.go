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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyText indicates the Text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrInvalidKind indicates an invalid ChunkKind value.
	ErrInvalidKind = errors.New("invalid chunk kind")

	// ErrEmptySourceOwner indicates the SourceRef has no owner.
	ErrEmptySourceOwner = errors.New("source owner cannot be empty")

	// ErrNegativePosition indicates a SourceRef position below zero.
	ErrNegativePosition = errors.New("source position cannot be negative")

	// ErrInvalidDimension indicates a non-positive configured vector dimension.
	ErrInvalidDimension = errors.New("vector dimension must be positive")

	// ErrDimensionMismatch indicates a vector whose dimension does not match
	// the engine's configured dimension. Mismatched vectors are rejected per
	// item, never silently mixed into the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
