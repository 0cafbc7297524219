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


package manager

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/poiesic/retrievit/core"
)

// Snapshot names under which the derived indexes are persisted.
const (
	SnapshotLexical = "lexical"
	SnapshotVector  = "vector"
)

// SaveSnapshots persists both indexes along with a manifest describing the
// chunk store state they were derived from.
func (m *Manager) SaveSnapshots(ctx context.Context) error {
	count, err := m.chunkRepository.CountActive(ctx)
	if err != nil {
		return err
	}
	checksum, err := m.chunkRepository.ActiveChecksum(ctx)
	if err != nil {
		return err
	}

	manifest := &core.SnapshotManifest{
		ChunkCount: count,
		Checksum:   checksum,
		Dimension:  m.dimension,
		SavedAt:    time.Now().UTC(),
	}

	lexData, err := m.lex.Load().Snapshot()
	if err != nil {
		return fmt.Errorf("lexical snapshot: %w", err)
	}
	if err := m.snapshotRepository.SaveSnapshot(ctx, SnapshotLexical, manifest, lexData); err != nil {
		return fmt.Errorf("lexical snapshot: %w", err)
	}

	vecData, err := m.vec.Load().Snapshot()
	if err != nil {
		return fmt.Errorf("vector snapshot: %w", err)
	}
	if err := m.snapshotRepository.SaveSnapshot(ctx, SnapshotVector, manifest, vecData); err != nil {
		return fmt.Errorf("vector snapshot: %w", err)
	}

	m.logger.Debug("index snapshots saved", "chunks", count)
	return nil
}

// LoadOrRebuild restores both indexes from their snapshots when the
// snapshots still describe the current chunk store. Any missing, stale, or
// corrupt snapshot falls back to a full rebuild; a snapshot problem costs a
// rebuild, never data.
func (m *Manager) LoadOrRebuild(ctx context.Context) error {
	if err := m.loadSnapshots(ctx); err != nil {
		m.logger.Warn("index snapshots unusable, rebuilding", "reason", err)
		return m.RebuildAll(ctx)
	}

	// Chunks that were still awaiting embeddings when the snapshot was
	// taken need their jobs re-scheduled.
	var needsEmbedding []core.ID
	err := m.chunkRepository.ForEachActive(ctx, func(chunk *core.Chunk) error {
		if chunk.Embedding.State != core.EmbeddingReady {
			needsEmbedding = append(needsEmbedding, chunk.Id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range needsEmbedding {
		m.enqueueEmbedding(id)
	}

	m.logger.Info("indexes restored from snapshots",
		"chunks", m.lex.Load().Len(),
		"vectors", m.vec.Load().Len(),
		"pendingEmbeddings", len(needsEmbedding))
	return nil
}

func (m *Manager) loadSnapshots(ctx context.Context) error {
	count, err := m.chunkRepository.CountActive(ctx)
	if err != nil {
		return err
	}
	checksum, err := m.chunkRepository.ActiveChecksum(ctx)
	if err != nil {
		return err
	}

	lexManifest, lexData, err := m.snapshotRepository.LoadSnapshot(ctx, SnapshotLexical)
	if err != nil {
		return fmt.Errorf("lexical snapshot: %w", err)
	}
	vecManifest, vecData, err := m.snapshotRepository.LoadSnapshot(ctx, SnapshotVector)
	if err != nil {
		return fmt.Errorf("vector snapshot: %w", err)
	}

	if err := m.validateManifest(SnapshotLexical, lexManifest, count, checksum); err != nil {
		return err
	}
	if err := m.validateManifest(SnapshotVector, vecManifest, count, checksum); err != nil {
		return err
	}

	lex := m.lex.Load()
	if err := lex.Restore(lexData); err != nil {
		return err
	}
	vec := m.vec.Load()
	if err := vec.Restore(vecData); err != nil {
		lex.Reset()
		return err
	}

	if lex.Len() != count || vec.Len() > count {
		lex.Reset()
		vec.Reset()
		return fmt.Errorf("snapshot contents disagree with store: lexical %d, vector %d, store %d",
			lex.Len(), vec.Len(), count)
	}
	return nil
}

func (m *Manager) validateManifest(name string, manifest *core.SnapshotManifest, count int, checksum []byte) error {
	if manifest == nil {
		return fmt.Errorf("%s snapshot: missing manifest", name)
	}
	if manifest.ChunkCount != count {
		return fmt.Errorf("%s snapshot: chunk count %d, store has %d", name, manifest.ChunkCount, count)
	}
	if !bytes.Equal(manifest.Checksum, checksum) {
		return fmt.Errorf("%s snapshot: checksum mismatch", name)
	}
	if manifest.Dimension != m.dimension {
		return fmt.Errorf("%s snapshot: dimension %d, engine wants %d", name, manifest.Dimension, m.dimension)
	}
	return nil
}
