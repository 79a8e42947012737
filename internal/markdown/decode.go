package markdown

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/richtext"
)

// refShortcode rewrites the destination of internal links so the CommonMark
// parser accepts it as an ordinary link target. It never spans lines.
var refShortcode = regexp.MustCompile(`\(\{\{<[ \t]*ref[ \t]+"([^"\n]*)"[ \t]*>\}\}`)

const (
	refPrefix = `ref="`
	refSuffix = `"`
)

// Decoder turns markdown pages into documents of a registry.
type Decoder struct {
	reg    *document.Registry
	tags   *document.TagIndex
	md     goldmark.Markdown
	logger *slog.Logger
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithTagIndex makes the decoder replace the tags of pages that already
// existed with the tags found in their front matter.
func WithTagIndex(ti *document.TagIndex) DecoderOption {
	return func(d *Decoder) {
		d.tags = ti
	}
}

// WithDecoderLogger sets the logger for skipped and pass-through nodes.
func WithDecoderLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		d.logger = l
	}
}

// NewDecoder returns a decoder resolving links through reg.
func NewDecoder(reg *document.Registry, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		reg:    reg,
		md:     goldmark.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode registers the page described by data and fills its body.
func (d *Decoder) Decode(data []byte) (*document.Document, error) {
	doc, body, err := d.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	d.DecodeBody(doc, body)
	return doc, nil
}

// DecodeHeader registers the page described by the front matter of data
// without touching its body, and returns the body for a later DecodeBody.
func (d *Decoder) DecodeHeader(data []byte) (*document.Document, string, error) {
	fm, body, err := SplitFrontMatter(data)
	if err != nil {
		return nil, "", err
	}
	_, existed := d.reg.Find(fm.Title)
	doc := d.reg.FindOrCreate(fm.Title, document.WithTags(fm.Tags...), document.WithDraft(fm.Draft))
	if existed {
		doc.SetDraft(fm.Draft)
		if d.tags != nil {
			d.tags.SetTags(doc, fm.Tags)
		}
	}
	return doc, body, nil
}

// DecodeBody replaces the body of doc with the decoded markdown body.
// Insertion observers of the body are not notified.
func (d *Decoder) DecodeBody(doc *document.Document, body string) {
	doc.Body.Silently(func() {
		doc.Body.Reset()
		source, edits := rewriteRefs(body)
		w := &bodyWriter{
			dec:      d,
			doc:      doc,
			original: body,
			source:   source,
			edits:    edits,
		}
		w.run()
	})
}

// edit records one rewritten shortcode. source[src0:src1] stands for
// original[orig0:orig1]; the target name is copied unchanged and starts at
// srcName and origName.
type edit struct {
	src0, srcName, src1    int
	orig0, origName, orig1 int
	name                   int
}

// rewriteRefs applies refShortcode to body. The edits map parsed offsets
// back to the original text, so only link destinations see the rewrite.
func rewriteRefs(body string) ([]byte, []edit) {
	var (
		out   []byte
		edits []edit
		last  int
	)
	for _, loc := range refShortcode.FindAllStringSubmatchIndex(body, -1) {
		out = append(out, body[last:loc[0]]...)
		head := `(<` + refPrefix
		e := edit{
			src0:     len(out),
			srcName:  len(out) + len(head),
			orig0:    loc[0],
			origName: loc[2],
			orig1:    loc[1],
			name:     loc[3] - loc[2],
		}
		out = append(out, head...)
		out = append(out, body[loc[2]:loc[3]]...)
		out = append(out, refSuffix+`>`...)
		e.src1 = len(out)
		edits = append(edits, e)
		last = loc[1]
	}
	return append(out, body[last:]...), edits
}

type bodyWriter struct {
	dec      *Decoder
	doc      *document.Document
	original string
	source   []byte
	edits    []edit

	origLines  []string
	lineStarts []int
	endsWithNL bool
}

func (w *bodyWriter) out() *richtext.Buffer { return w.doc.Body }

func (w *bodyWriter) run() {
	if w.original == "" {
		return
	}
	w.endsWithNL = strings.HasSuffix(w.original, "\n")
	w.origLines = strings.Split(strings.TrimSuffix(w.original, "\n"), "\n")

	w.lineStarts = []int{0}
	for i, b := range w.source {
		if b == '\n' && i+1 < len(w.source) {
			w.lineStarts = append(w.lineStarts, i+1)
		}
	}

	root := w.dec.md.Parser().Parse(text.NewReader(w.source))
	next := 0
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		first, last, ok := w.blockLines(n, next)
		if !ok || first < next {
			w.dec.logger.Info("markdown: block kept verbatim", slog.String("kind", n.Kind().String()))
			continue
		}
		w.copyLines(next, first)
		w.emitBlock(n, last)
		next = last + 1
	}
	w.copyLines(next, len(w.origLines))
}

// origOffset maps an offset of the parsed source to the original body.
// The mapping never decreases, so adjacent segments stay adjacent.
func (w *bodyWriter) origOffset(off int) int {
	delta := 0
	for _, e := range w.edits {
		switch {
		case off >= e.src1:
			delta = e.orig1 - e.src1
			continue
		case off <= e.src0:
			return off + delta
		case off == e.src0+1:
			// Just past the shared opening parenthesis.
			return e.orig0 + 1
		case off < e.srcName:
			return e.origName
		case off <= e.srcName+e.name:
			return off - e.srcName + e.origName
		default:
			return e.origName + e.name
		}
	}
	return off + delta
}

// value returns the original text under seg, indentation padding included.
func (w *bodyWriter) value(seg text.Segment) string {
	v := w.original[w.origOffset(seg.Start):w.origOffset(seg.Stop)]
	if seg.Padding > 0 {
		v = strings.Repeat(" ", seg.Padding) + v
	}
	return v
}

// lineOf returns the line holding byte offset off of the parsed source.
func (w *bodyWriter) lineOf(off int) int {
	return sort.Search(len(w.lineStarts), func(i int) bool { return w.lineStarts[i] > off }) - 1
}

func (w *bodyWriter) newline(line int) string {
	if line == len(w.origLines)-1 && !w.endsWithNL {
		return ""
	}
	return "\n"
}

// copyLines writes original lines [from, to) as plain text.
func (w *bodyWriter) copyLines(from, to int) {
	for i := from; i < to && i < len(w.origLines); i++ {
		w.out().Insert(w.out().Len(), w.origLines[i]+w.newline(i))
	}
}

func isFence(line string) bool {
	t := strings.TrimLeft(line, " ")
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// blockLines locates a modelled top-level block. Blocks the model does not
// cover report false and end up in the verbatim gaps.
func (w *bodyWriter) blockLines(n ast.Node, from int) (int, int, bool) {
	switch n := n.(type) {
	case *ast.Heading:
		if n.Level > 3 || n.Lines().Len() == 0 {
			return 0, 0, false
		}
		first := w.lineOf(n.Lines().At(0).Start)
		last := w.lineOf(n.Lines().At(n.Lines().Len() - 1).Start)
		if strings.HasPrefix(strings.TrimLeft(w.origLines[first], " "), "#") {
			return first, first, true
		}
		// Setext heading: only single line text is modelled.
		if first != last || last+1 >= len(w.origLines) {
			return 0, 0, false
		}
		return first, last + 1, true

	case *ast.Paragraph:
		if n.Lines().Len() == 0 {
			return 0, 0, false
		}
		first := w.lineOf(n.Lines().At(0).Start)
		last := w.lineOf(n.Lines().At(n.Lines().Len() - 1).Start)
		return first, last, true

	case *ast.FencedCodeBlock:
		var first int
		switch {
		case n.Info != nil:
			first = w.lineOf(n.Info.Segment.Start)
		case n.Lines().Len() > 0:
			first = w.lineOf(n.Lines().At(0).Start) - 1
		default:
			first = -1
			for i := from; i < len(w.origLines); i++ {
				if isFence(w.origLines[i]) {
					first = i
					break
				}
			}
		}
		if first < 0 {
			return 0, 0, false
		}
		last := first
		if n.Lines().Len() > 0 {
			last = w.lineOf(n.Lines().At(n.Lines().Len() - 1).Start)
		}
		if last+1 < len(w.origLines) && isFence(w.origLines[last+1]) {
			last++
		}
		return first, last, true
	}
	return 0, 0, false
}

func (w *bodyWriter) emitBlock(n ast.Node, last int) {
	switch n := n.(type) {
	case *ast.Heading:
		title, ok := w.plainChildren(n)
		if !ok {
			w.dec.logger.Warn("markdown: heading styling dropped",
				slog.String("page", w.doc.Heading()),
				slog.Int("level", n.Level))
			first := w.lineOf(n.Lines().At(0).Start)
			w.copyLines(first, last+1)
			return
		}
		w.out().InsertStyled(w.out().Len(), title, richtext.HeadingStyle(n.Level))
		w.out().Insert(w.out().Len(), w.newline(last))

	case *ast.Paragraph:
		w.emitInline(n, richtext.None)
		w.out().Insert(w.out().Len(), w.newline(last))

	case *ast.FencedCodeBlock:
		var sb strings.Builder
		for i := 0; i < n.Lines().Len(); i++ {
			sb.WriteString(w.value(n.Lines().At(i)))
		}
		w.out().InsertStyled(w.out().Len(), sb.String(), richtext.Code)
	}
}

// plainChildren concatenates n's children when they are all text.
func (w *bodyWriter) plainChildren(n ast.Node) (string, bool) {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			sb.WriteString(w.value(c.Segment))
			if c.SoftLineBreak() || c.HardLineBreak() {
				return "", false
			}
		case *ast.String:
			sb.Write(c.Value)
		default:
			return "", false
		}
	}
	return sb.String(), sb.Len() > 0
}

func (w *bodyWriter) write(s string, style richtext.Style) {
	w.out().InsertStyled(w.out().Len(), s, style)
}

func (w *bodyWriter) emitInline(n ast.Node, style richtext.Style) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			w.write(w.value(c.Segment), style)
			if c.SoftLineBreak() || c.HardLineBreak() {
				w.write("\n", style)
			}

		case *ast.String:
			w.write(string(c.Value), style)

		case *ast.Emphasis:
			inner := richtext.Emph
			if c.Level >= 2 {
				inner = richtext.Bold
			}
			w.emitInline(c, inner)

		case *ast.CodeSpan:
			code := w.inlineText(c)
			fence := "`"
			if strings.Contains(code, "`") {
				fence = "``"
			}
			w.write(fence+code+fence, style)

		case *ast.Link:
			w.emitLink(c, style)

		case *ast.Image:
			w.write("!["+w.inlineText(c)+"]("+string(c.Destination)+titleSuffix(c.Title)+")", style)

		case *ast.AutoLink:
			w.write("<"+string(c.Label(w.source))+">", style)

		case *ast.RawHTML:
			for i := 0; i < c.Segments.Len(); i++ {
				w.write(w.value(c.Segments.At(i)), style)
			}

		default:
			w.dec.logger.Info("markdown: inline node passed through", slog.String("kind", c.Kind().String()))
			w.emitInline(c, style)
		}
	}
}

func (w *bodyWriter) emitLink(link *ast.Link, style richtext.Style) {
	dest := string(link.Destination)
	internal := strings.HasPrefix(dest, refPrefix) && strings.HasSuffix(dest, refSuffix) && len(dest) >= len(refPrefix)+len(refSuffix)
	if internal {
		if name, ok := w.plainChildren(link); ok {
			target := w.dec.reg.FindOrCreate(name)
			w.dec.reg.InsertAnchor(w.doc, w.out().Len(), target)
			return
		}
		w.dec.logger.Warn("markdown: internal link without plain text kept as text",
			slog.String("page", w.doc.Heading()))
		dest = `{{< ref "` + dest[len(refPrefix):len(dest)-len(refSuffix)] + `" >}}`
	} else {
		w.dec.logger.Info("markdown: external link kept as text",
			slog.String("page", w.doc.Heading()),
			slog.String("destination", dest))
	}
	w.write("["+w.inlineText(link)+"]("+dest+titleSuffix(link.Title)+")", style)
}

// inlineText flattens the text below n.
func (w *bodyWriter) inlineText(n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			sb.WriteString(w.value(c.Segment))
			if c.SoftLineBreak() || c.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(c.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func titleSuffix(title []byte) string {
	if len(title) == 0 {
		return ""
	}
	return ` "` + string(title) + `"`
}
