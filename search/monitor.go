package search

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps during search.
type Monitor interface {
	Start(query string)
	PlanChosen(plan Plan)
	BranchCompleted(branch string, candidates int, err error)
	Fused(candidates int)
	Filtered(kept, dropped int)
	Abstained(needs []string)
	Finish(hits []Hit)
}

// noopMonitor is a no-op implementation of Monitor.
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                        {}
func (n *noopMonitor) PlanChosen(_ Plan)                     {}
func (n *noopMonitor) BranchCompleted(_ string, _ int, _ error) {}
func (n *noopMonitor) Fused(_ int)                           {}
func (n *noopMonitor) Filtered(_, _ int)                     {}
func (n *noopMonitor) Abstained(_ []string)                  {}
func (n *noopMonitor) Finish(_ []Hit)                        {}
