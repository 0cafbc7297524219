package manager

import "github.com/poiesic/retrievit/core"

// Event describes a chunk lifecycle change that the derived indexes must
// reflect. Events are emitted after the chunk store has already committed
// the change.
type Event interface {
	isEvent()
}

// Created signals a new active chunk.
type Created struct {
	Chunk *core.Chunk
}

// Updated signals that a chunk was superseded: the old chunk was tombstoned
// and a replacement created in its place. Chunk text is immutable, so an
// in-place rewrite never happens.
type Updated struct {
	OldId core.ID
	Chunk *core.Chunk
}

// Deleted signals that a chunk was tombstoned.
type Deleted struct {
	Id core.ID
}

func (Created) isEvent() {}
func (Updated) isEvent() {}
func (Deleted) isEvent() {}
