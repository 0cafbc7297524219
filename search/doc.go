// Package search provides hybrid retrieval over indexed chunks, fusing BM25
// keyword relevance with cosine vector similarity into a single ranking.
//
// Both signals are gathered from a widened candidate pool, min-max normalized
// within their own candidate sets, and combined with configurable weights.
// When the embedding service is down, SearchLexical offers a keyword-only
// degraded mode.
package search
