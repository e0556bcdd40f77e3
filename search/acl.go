package search

import "github.com/poiesic/recall/core"

// filterAuthorized keeps only hits whose document the callers may read.
// Access is default-deny: a missing document, or one with neither the
// public flag nor an allow-list match, is dropped. This runs before
// truncation and before the abstain inputs are computed, so callers can
// never infer the existence of documents they cannot read.
func filterAuthorized(hits []Hit, callers []core.Identity) (kept []Hit, dropped int) {
	kept = hits[:0]
	for _, hit := range hits {
		if hit.Document == nil || hit.Document.Deleted {
			dropped++
			continue
		}
		if !hit.Document.ACL.Authorizes(callers) {
			dropped++
			continue
		}
		kept = append(kept, hit)
	}
	return kept, dropped
}
