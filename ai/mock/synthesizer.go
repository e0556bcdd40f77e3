package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/recall/ai"
)

// MockSynthesizer is a test double for ai.Synthesizer.
type MockSynthesizer struct {
	// SynthesizeFunc is called by Synthesize if set.
	// If nil, uses default deterministic behavior.
	SynthesizeFunc func(ctx context.Context, question string, passages []ai.Passage) (string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockSynthesizer creates a mock synthesizer with default
// deterministic behavior. Returns the concrete type so tests can inject
// behavior and assert call counts.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Synthesize returns a canned answer citing every passage in order.
func (m *MockSynthesizer) Synthesize(ctx context.Context, question string, passages []ai.Passage) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, question, passages)
	}

	answer := fmt.Sprintf("Answer to %q based on %d excerpts", question, len(passages))
	for i := range passages {
		answer += fmt.Sprintf("[%d]", i+1)
	}
	return answer, nil
}

// CallCount returns the number of times Synthesize was called.
func (m *MockSynthesizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and any injected behavior.
func (m *MockSynthesizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.SynthesizeFunc = nil
}
