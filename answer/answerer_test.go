package answer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/breaker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/search"
	storagebadger "github.com/poiesic/recall/storage/badger"
	storagebleve "github.com/poiesic/recall/storage/bleve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAnswerer struct {
	answerer    *Answerer
	synthesizer *mock.MockSynthesizer
}

func newTestAnswerer(t *testing.T, policy search.AbstainPolicy) *testAnswerer {
	t.Helper()
	ctx := context.Background()

	docs, jobs, dlq, backend, err := storagebadger.NewMemoryRepositories()
	require.NoError(t, err)
	lexical, err := storagebleve.OpenIndex("", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		lexical.Close()
		dlq.Close()
		jobs.Close()
		docs.Close()
		backend.Close()
	})

	embedder := mock.NewMockEmbedder()
	engine, err := search.NewEngine(docs, lexical, embedder, search.WithAbstainPolicy(policy))
	require.NoError(t, err)

	// Seed one public document the queries can land on.
	doc := &core.Document{
		Source:     "slack",
		ExternalID: "runbook",
		Title:      "deploy runbook",
		Path:       "/eng/runbook",
		ACL:        core.ACL{Public: true},
		EventTime:  time.Now().UTC(),
	}
	doc, err = docs.UpsertDocument(ctx, doc)
	require.NoError(t, err)
	text := "rollback procedure for failed deploys"
	vector, err := embedder.EmbedText(ctx, text)
	require.NoError(t, err)
	chunks, err := docs.SwapChunks(ctx, doc.Id, []*core.Chunk{{Text: text, Vector: vector}})
	require.NoError(t, err)
	require.NoError(t, lexical.IndexChunks(ctx, doc, chunks))

	synthesizer := mock.NewMockSynthesizer()
	answerer, err := NewAnswerer(engine, synthesizer)
	require.NoError(t, err)

	return &testAnswerer{answerer: answerer, synthesizer: synthesizer}
}

func TestAsk(t *testing.T) {
	ta := newTestAnswerer(t, search.AbstainPolicy{MinKept: 1, MinScore: 0})
	ctx := context.Background()

	resp, err := ta.answerer.Ask(ctx, search.Request{Query: "rollback failed deploys"})
	require.NoError(t, err)

	assert.False(t, resp.Abstained)
	assert.NotEmpty(t, resp.Answer)
	require.NotEmpty(t, resp.Citations)
	assert.Equal(t, "deploy runbook", resp.Citations[0].Title)
	assert.Equal(t, resp.Citations[0].Score, resp.Confidence)
	assert.Equal(t, 1, ta.synthesizer.CallCount())
}

func TestAskAbstains(t *testing.T) {
	// The default policy wants three hits; the corpus has one chunk.
	ta := newTestAnswerer(t, search.DefaultAbstainPolicy())
	ctx := context.Background()

	resp, err := ta.answerer.Ask(ctx, search.Request{Query: "rollback failed deploys"})
	require.NoError(t, err)

	assert.True(t, resp.Abstained)
	assert.NotEmpty(t, resp.Needs)
	assert.Empty(t, resp.Answer)
	// The synthesizer is never consulted on abstention.
	assert.Zero(t, ta.synthesizer.CallCount())
}

func TestAskSynthesizerFailure(t *testing.T) {
	ta := newTestAnswerer(t, search.AbstainPolicy{MinKept: 1, MinScore: 0})
	ctx := context.Background()

	ta.synthesizer.SynthesizeFunc = func(ctx context.Context, question string, passages []ai.Passage) (string, error) {
		return "", errors.New("model overloaded")
	}

	_, err := ta.answerer.Ask(ctx, search.Request{Query: "rollback failed deploys"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestAskBreakerOpens(t *testing.T) {
	ta := newTestAnswerer(t, search.AbstainPolicy{MinKept: 1, MinScore: 0})
	ctx := context.Background()

	answerer := ta.answerer
	answerer.breakers = breaker.NewGroup(breaker.Config{FailureThreshold: 1, Cooldown: time.Hour})

	ta.synthesizer.SynthesizeFunc = func(ctx context.Context, question string, passages []ai.Passage) (string, error) {
		return "", errors.New("model overloaded")
	}

	_, err := answerer.Ask(ctx, search.Request{Query: "rollback failed deploys"})
	require.Error(t, err)

	// The breaker is open now; the synthesizer is not called again.
	calls := ta.synthesizer.CallCount()
	_, err = answerer.Ask(ctx, search.Request{Query: "rollback failed deploys"})
	require.Error(t, err)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, calls, ta.synthesizer.CallCount())
}
