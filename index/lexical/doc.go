// Package lexical provides an in-memory inverted index with BM25 scoring.
//
// The index is derived state: it is rebuilt from the chunk store whenever its
// snapshot is missing or inconsistent, so it never needs to be durable on its
// own. All operations are safe for concurrent use.
package lexical
