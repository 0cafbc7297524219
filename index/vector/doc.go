// Package vector provides an in-memory vector index with cosine similarity
// search. Vectors are normalized to unit length on insert so similarity
// reduces to an inner product at query time.
//
// Like the lexical index this is derived state, rebuilt from the chunk store
// when its snapshot is missing or inconsistent.
package vector
