package retrieval

import "github.com/poiesic/ragsync/core"

// AssemblyMonitor provides hooks to observe context assembly.
type AssemblyMonitor interface {
	Start(query string, params Params)
	AfterSearch(hits []core.RetrievedChunk)
	AfterFilter(kept []core.RetrievedChunk)
	Truncated(dropped int)
	Finish(entries int, length int)
}

// noopMonitor is a no-op implementation of AssemblyMonitor
type noopMonitor struct{}

var _ AssemblyMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Params)            {}
func (n *noopMonitor) AfterSearch(_ []core.RetrievedChunk) {}
func (n *noopMonitor) AfterFilter(_ []core.RetrievedChunk) {}
func (n *noopMonitor) Truncated(_ int)                     {}
func (n *noopMonitor) Finish(_ int, _ int)                 {}
