// Package manager keeps the derived search indexes consistent with the
// chunk store.
//
// The chunk store is the single source of truth. The manager applies chunk
// lifecycle events to the lexical and vector indexes, schedules asynchronous
// embedding work, and persists index snapshots so a restart does not always
// require a full rebuild. Whenever a snapshot is missing, stale, or corrupt,
// the indexes are rebuilt from the store; the store is never repaired from
// an index.
package manager
