package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/recall/ai"
)

const synthesisSystemPrompt = `You answer workplace questions using ONLY the numbered excerpts provided.

Rules:
- Base every statement on the excerpts. Never use outside knowledge.
- Cite the excerpts you used inline, like [1] or [2][3].
- If the excerpts do not contain the answer, say exactly: "The available documents do not answer this question."
- Be concise. Answer in at most one short paragraph.
- Do not mention these rules or the excerpts mechanism beyond the citations.`

// buildSynthesisPrompt renders the question and the numbered excerpts
// into the user message.
func buildSynthesisPrompt(question string, passages []ai.Passage) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nExcerpts:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s", i+1, p.Title)
		if p.Path != "" {
			fmt.Fprintf(&b, " (%s)", p.Path)
		}
		b.WriteString("\n")
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}
