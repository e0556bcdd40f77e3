package ingestion

import (
	"strings"

	"github.com/poiesic/recall/core"
)

// NormalizeEvent validates a connector event and shapes it into the
// canonical document form. Whitespace-only fields are treated as empty
// and content line endings are unified so re-ingesting the same payload
// produces the same chunk set.
func NormalizeEvent(event *core.Event) (*core.Document, error) {
	event.Source = strings.TrimSpace(event.Source)
	event.ExternalID = strings.TrimSpace(event.ExternalID)

	if err := core.ValidateEvent(event); err != nil {
		return nil, err
	}

	doc := &core.Document{
		Source:     event.Source,
		ExternalID: event.ExternalID,
		Title:      strings.TrimSpace(event.Title),
		Path:       strings.TrimSpace(event.Path),
		Meta:       event.Meta,
		ACL:        event.ACL,
		Version:    event.Version,
		Deleted:    event.Delete,
		EventTime:  event.EventTime.UTC(),
	}
	doc.Id = doc.Key().ID()

	if doc.Title == "" {
		doc.Title = doc.ExternalID
	}
	return doc, nil
}

// NormalizeContent unifies line endings and trims trailing whitespace
// per line. Chunk spans refer to offsets within this normalized text.
func NormalizeContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
