// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

// Mode classifies a query by intent.
type Mode string

const (
	// ModeExact targets a specific artifact: a filename, a ticket id,
	// or a quoted phrase. Keyword evidence dominates.
	ModeExact Mode = "exact"

	// ModeConcept is a long, descriptive question. Semantic evidence
	// dominates.
	ModeConcept Mode = "concept"

	// ModeMixed is everything in between.
	ModeMixed Mode = "mixed"
)

// Plan is the planner's decision for one query: which mode it is and
// how to weight the two retrieval branches. Weights sum to 1.
type Plan struct {
	Mode    Mode
	Lexical float64
	Vector  float64
}

// PlannerConfig holds the classification thresholds and branch weights.
type PlannerConfig struct {
	// ConceptTokens is the token count at which a query is treated as
	// a descriptive question.
	ConceptTokens int

	ExactLexical   float64
	ExactVector    float64
	ConceptLexical float64
	ConceptVector  float64
	MixedLexical   float64
	MixedVector    float64
}

// DefaultPlannerConfig returns the production tuning.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		ConceptTokens:  6,
		ExactLexical:   0.9,
		ExactVector:    0.1,
		ConceptLexical: 0.3,
		ConceptVector:  0.7,
		MixedLexical:   0.6,
		MixedVector:    0.4,
	}
}

// Planner classifies queries. It is pure: the same query always yields
// the same plan.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner creates a planner. Zero-value config fields fall back to
// defaults.
func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.ConceptTokens <= 0 {
		cfg.ConceptTokens = def.ConceptTokens
	}
	if cfg.ExactLexical == 0 && cfg.ExactVector == 0 {
		cfg.ExactLexical, cfg.ExactVector = def.ExactLexical, def.ExactVector
	}
	if cfg.ConceptLexical == 0 && cfg.ConceptVector == 0 {
		cfg.ConceptLexical, cfg.ConceptVector = def.ConceptLexical, def.ConceptVector
	}
	if cfg.MixedLexical == 0 && cfg.MixedVector == 0 {
		cfg.MixedLexical, cfg.MixedVector = def.MixedLexical, def.MixedVector
	}
	return &Planner{cfg: cfg}
}

// Plan classifies the query. Lookup patterns win over length: a long
// query containing a filename is still an exact lookup.
func (p *Planner) Plan(query string) Plan {
	switch {
	case looksLikeLookup(query):
		return Plan{Mode: ModeExact, Lexical: p.cfg.ExactLexical, Vector: p.cfg.ExactVector}
	case tokenCount(query) >= p.cfg.ConceptTokens:
		return Plan{Mode: ModeConcept, Lexical: p.cfg.ConceptLexical, Vector: p.cfg.ConceptVector}
	default:
		return Plan{Mode: ModeMixed, Lexical: p.cfg.MixedLexical, Vector: p.cfg.MixedVector}
	}
}
