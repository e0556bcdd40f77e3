package ingestion

import (
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker(t *testing.T) {
	t.Run("empty content yields no chunks", func(t *testing.T) {
		chunker := NewChunker(100, 20)
		assert.Empty(t, chunker.Chunk(""))
	})

	t.Run("short content yields a single chunk", func(t *testing.T) {
		chunker := NewChunker(100, 20)
		chunks := chunker.Chunk("a short note")
		require.Len(t, chunks, 1)
		assert.Equal(t, "a short note", chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Span.Start)
		assert.Equal(t, 12, chunks[0].Span.End)
	})

	t.Run("long content splits on word boundaries", func(t *testing.T) {
		content := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 40))
		chunker := NewChunker(100, 20)
		chunks := chunker.Chunk(content)
		require.Greater(t, len(chunks), 1)

		runes := []rune(content)
		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.Seq)
			// Spans index back into the content.
			assert.Equal(t, chunk.Text, string(runes[chunk.Span.Start:chunk.Span.End]))
			// No chunk starts or ends mid-word.
			assert.False(t, unicode.IsSpace(rune(chunk.Text[0])))
			assert.False(t, unicode.IsSpace(rune(chunk.Text[len(chunk.Text)-1])))
			if chunk.Span.End < len(runes) {
				assert.True(t, unicode.IsSpace(runes[chunk.Span.End]))
			}
		}
	})

	t.Run("consecutive chunks overlap", func(t *testing.T) {
		content := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 30))
		chunker := NewChunker(100, 30)
		chunks := chunker.Chunk(content)
		require.Greater(t, len(chunks), 1)
		for i := 1; i < len(chunks); i++ {
			assert.Less(t, chunks[i].Span.Start, chunks[i-1].Span.End)
		}
	})

	t.Run("chunking is deterministic", func(t *testing.T) {
		content := strings.Repeat("the same words every time ", 25)
		chunker := NewChunker(120, 25)
		first := chunker.Chunk(content)
		second := chunker.Chunk(content)
		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].Text, second[i].Text)
			assert.Equal(t, first[i].Span, second[i].Span)
		}
	})

	t.Run("unbroken word longer than a chunk still terminates", func(t *testing.T) {
		content := strings.Repeat("x", 500)
		chunker := NewChunker(100, 20)
		chunks := chunker.Chunk(content)
		require.NotEmpty(t, chunks)
		total := 0
		for _, chunk := range chunks {
			total += len(chunk.Text)
		}
		assert.GreaterOrEqual(t, total, 500)
	})
}

func TestNormalizeContent(t *testing.T) {
	assert.Equal(t, "line one\nline two", NormalizeContent("line one  \r\nline two\r\n"))
	assert.Equal(t, "", NormalizeContent("  \n \t \n"))
}

func TestRetryDelay(t *testing.T) {
	for attempts := 1; attempts <= 3; attempts++ {
		base := backoffSchedule[attempts-1]
		for i := 0; i < 50; i++ {
			delay := retryDelay(attempts)
			assert.GreaterOrEqual(t, delay, time.Duration(float64(base)*0.8))
			assert.LessOrEqual(t, delay, time.Duration(float64(base)*1.2))
		}
	}

	// Attempts beyond the schedule reuse the last entry.
	delay := retryDelay(10)
	assert.GreaterOrEqual(t, delay, time.Duration(float64(backoffSchedule[2])*0.8))
}
