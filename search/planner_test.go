package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())

	tests := []struct {
		name  string
		query string
		mode  Mode
	}{
		{"filename is an exact lookup", "Q3_roadmap.pdf", ModeExact},
		{"filename embedded in a long question still wins", "where can I find the latest Q3_roadmap.pdf for the planning meeting", ModeExact},
		{"ticket id is an exact lookup", "status of INFRA-1432", ModeExact},
		{"quoted phrase is an exact lookup", `notes that say "error budget exhausted"`, ModeExact},
		{"unclosed quote is not a phrase", `what's the "error budget`, ModeMixed},
		{"long descriptive question is conceptual", "how do we decide when a service needs its own on-call rotation", ModeConcept},
		{"short query is mixed", "deploy checklist rollback", ModeMixed},
		{"five tokens stay mixed", "who owns the payments service", ModeMixed},
		{"six tokens become conceptual", "who owns the payments service now", ModeConcept},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planner.Plan(tt.query)
			assert.Equal(t, tt.mode, plan.Mode)
		})
	}
}

func TestPlanWeights(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())

	exact := planner.Plan("Q3_roadmap.pdf")
	assert.InDelta(t, 0.9, exact.Lexical, 1e-9)
	assert.InDelta(t, 0.1, exact.Vector, 1e-9)

	concept := planner.Plan("how do we keep staging data in sync with production")
	assert.InDelta(t, 0.3, concept.Lexical, 1e-9)
	assert.InDelta(t, 0.7, concept.Vector, 1e-9)

	mixed := planner.Plan("deploy checklist rollback")
	assert.InDelta(t, 0.6, mixed.Lexical, 1e-9)
	assert.InDelta(t, 0.4, mixed.Vector, 1e-9)
}

func TestPlanIsDeterministic(t *testing.T) {
	planner := NewPlanner(DefaultPlannerConfig())
	query := "how do we rotate the signing keys"
	first := planner.Plan(query)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, planner.Plan(query))
	}
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "deploy checklist", NormalizeQuery("  Deploy   CHECKLIST \n"))
	assert.Equal(t, NormalizeQuery("Who owns payments?"), NormalizeQuery("who   owns payments?"))
}
