package search

// AbstainPolicy decides when retrieval results are too thin to stand
// behind. Returning nothing with an explanation beats returning noise.
type AbstainPolicy struct {
	// MinKept is the minimum number of authorized hits required.
	MinKept int

	// MinScore is the minimum top fused score required.
	MinScore float64
}

// DefaultAbstainPolicy returns the production tuning: at least three
// authorized hits and a top score of at least 0.35.
func DefaultAbstainPolicy() AbstainPolicy {
	return AbstainPolicy{MinKept: 3, MinScore: 0.35}
}

// Evaluate inspects the authorized, fused hits (sorted best first) and
// reports whether to abstain, with suggestions for what would help.
func (p AbstainPolicy) Evaluate(hits []Hit) (abstain bool, needs []string) {
	if len(hits) < p.MinKept {
		needs = append(needs, "more matching documents accessible to you")
	}
	if len(hits) == 0 || hits[0].Score < p.MinScore {
		needs = append(needs, "a more specific query, or different keywords")
	}
	return len(needs) > 0, needs
}
