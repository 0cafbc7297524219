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

import "fmt"

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - Kind must be valid (conversation turn or document fragment)
//   - Source owner must not be empty, position must not be negative
//
// NOT validated (populated later in the lifecycle):
//   - Embedding (empty until the embedding worker runs)
//   - ID (0 is valid before the store assigns one from its sequence)
//   - State (set by the store on insert)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}

	if err := ValidateKind(chunk.Kind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	if err := ValidateSourceRef(chunk.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	return nil
}

// ValidateKind validates that a ChunkKind has a valid value.
func ValidateKind(kind ChunkKind) error {
	if kind != KindConversationTurn && kind != KindDocumentFragment {
		return fmt.Errorf("%w: value %d", ErrInvalidKind, kind)
	}
	return nil
}

// ValidateSourceRef validates a SourceRef according to domain rules.
func ValidateSourceRef(ref SourceRef) error {
	if ref.Owner == "" {
		return ErrEmptySourceOwner
	}
	if ref.Position < 0 {
		return fmt.Errorf("%w: position %d", ErrNegativePosition, ref.Position)
	}
	return nil
}

// ValidateVector validates a vector against the configured dimension.
// Dimension mismatches are per-item failures and must never abort a batch.
func ValidateVector(vector []float32, dimension int) error {
	if dimension <= 0 {
		return ErrInvalidDimension
	}
	if len(vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}
