package orchestrator

// attemptBudget stops the coding cycle after too many failed attempts within
// one turn. A render that the review rejects still counts as a failure.
type attemptBudget struct {
	failures  int
	threshold int
}

func newAttemptBudget(threshold int) *attemptBudget {
	if threshold <= 0 {
		threshold = 10
	}
	return &attemptBudget{threshold: threshold}
}

// recordFailure counts one failed attempt and reports whether the budget is
// now spent.
func (b *attemptBudget) recordFailure() bool {
	b.failures++
	return b.exhausted()
}

func (b *attemptBudget) exhausted() bool {
	return b.failures >= b.threshold
}
