package markdown

import (
	"log/slog"

	"github.com/starford/quire/internal/document"
)

// Summary is the searchable view of a page file.
type Summary struct {
	Title string
	Draft string
	Tags  []string
	// Text is the body with anchors replaced by the headings they point at.
	Text string
	// Links holds the linked headings in order of first appearance.
	Links []string
}

// Summarize decodes data in a throwaway registry. It fails like Decode.
func Summarize(data []byte) (Summary, error) {
	quiet := slog.New(slog.DiscardHandler)
	reg := document.NewRegistry(document.WithLogger(quiet))
	doc, err := NewDecoder(reg, WithDecoderLogger(quiet)).Decode(data)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Title: doc.Heading(),
		Draft: doc.Draft(),
		Tags:  doc.Tags(),
		Text:  doc.Body.PlainText(),
		Links: Links(doc),
	}, nil
}

// Links returns the headings doc links to, without repeats, in order.
func Links(doc *document.Document) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, a := range doc.Anchors() {
		h := a.Target.Heading()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
