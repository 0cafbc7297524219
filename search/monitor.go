package search

import "github.com/poiesic/retrievit/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(queryId, query string)
	AfterLexicalSearch(candidates []core.ScoredChunk)
	AfterVectorSearch(candidates []core.ScoredChunk)
	AfterFusion(hits []FusedHit)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                      {}
func (n *noopMonitor) AfterLexicalSearch(_ []core.ScoredChunk) {}
func (n *noopMonitor) AfterVectorSearch(_ []core.ScoredChunk)  {}
func (n *noopMonitor) AfterFusion(_ []FusedHit)                {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)           {}
