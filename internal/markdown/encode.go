package markdown

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/richtext"
)

const codeFence = "````"

// Encoder serialises documents back to markdown.
type Encoder struct {
	logger *slog.Logger
}

// NewEncoder returns an encoder logging to logger, or to the default logger
// when logger is nil.
func NewEncoder(logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{logger: logger}
}

// Encode renders doc with the default encoder.
func Encode(doc *document.Document) []byte {
	return NewEncoder(nil).Encode(doc)
}

// Encode renders the front matter and body of doc.
func (e *Encoder) Encode(doc *document.Document) []byte {
	w := &mdWriter{enc: e, page: doc.Heading()}
	w.WriteString(fmDelim + "\n")
	w.WriteString("title: " + quote(doc.Heading()) + "\n")
	w.WriteString("draft: " + doc.Draft() + "\n")
	w.WriteString("tags:\n")
	for _, t := range doc.Tags() {
		w.WriteString("  - " + tagScalar(t) + "\n")
	}
	w.WriteString(fmDelim + "\n")
	w.body(doc.Body)
	return []byte(w.String())
}

// EncodeBody renders a body without front matter.
func (e *Encoder) EncodeBody(buf *richtext.Buffer) string {
	w := &mdWriter{enc: e}
	w.body(buf)
	return w.String()
}

// Link renders the markdown of an anchor to heading.
func Link(heading string) string {
	return fmt.Sprintf(`[%s]({{< ref "%s" >}} "%s")`, heading, Filename(heading), heading)
}

type mdWriter struct {
	strings.Builder
	enc  *Encoder
	page string
	last rune
	open richtext.Style
}

func (w *mdWriter) WriteString(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	w.last, _ = utf8.DecodeLastRuneInString(s)
	return w.Builder.WriteString(s)
}

func (w *mdWriter) atLineStart() bool {
	return w.Len() == 0 || w.last == '\n'
}

func (w *mdWriter) body(buf *richtext.Buffer) {
	for _, span := range buf.Spans() {
		if span.IsAnchor() {
			w.switchTo(richtext.None)
			w.WriteString(Link(span.Anchor.Target.Heading()))
			continue
		}
		w.text(span.Text, span.Style)
	}
	if w.open != richtext.None {
		w.enc.logger.Debug("markdown: closing style at end of page",
			slog.String("page", w.page),
			slog.String("style", w.open.String()))
	}
	w.switchTo(richtext.None)
}

// text writes one run. Bold and emphasis markers hug the non-blank part of
// the run so the output stays valid emphasis.
func (w *mdWriter) text(s string, style richtext.Style) {
	if style != richtext.Bold && style != richtext.Emph {
		w.switchTo(style)
		w.WriteString(s)
		return
	}
	core := strings.TrimFunc(s, unicode.IsSpace)
	if core == "" {
		w.switchTo(richtext.None)
		w.WriteString(s)
		return
	}
	lead := s[:strings.Index(s, core)]
	trail := s[len(lead)+len(core):]
	w.switchTo(richtext.None)
	w.WriteString(lead)
	w.switchTo(style)
	w.WriteString(core)
	if trail != "" {
		w.switchTo(richtext.None)
		w.WriteString(trail)
	}
}

func (w *mdWriter) switchTo(style richtext.Style) {
	if style == w.open {
		return
	}
	w.close(w.open)
	w.start(style)
	w.open = style
}

func (w *mdWriter) start(style richtext.Style) {
	switch style {
	case richtext.Bold:
		w.WriteString("**")
	case richtext.Emph:
		w.WriteString("*")
	case richtext.Code:
		if !w.atLineStart() {
			w.WriteString("\n")
		}
		w.WriteString(codeFence + "\n")
	case richtext.H1, richtext.H2, richtext.H3:
		w.WriteString(strings.Repeat("#", style.HeadingLevel()) + " ")
	}
}

func (w *mdWriter) close(style richtext.Style) {
	switch style {
	case richtext.Bold:
		w.WriteString("**")
	case richtext.Emph:
		w.WriteString("*")
	case richtext.Code:
		if !w.atLineStart() {
			w.WriteString("\n")
		}
		w.WriteString(codeFence + "\n")
	}
}
