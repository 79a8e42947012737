// Package recovery turns plain-text markdown markers left in a page body
// into styles and anchors. It is used once per page when importing pages
// written by older versions, and is safe to run again.
package recovery

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/pattern"
	"github.com/starford/quire/internal/richtext"
)

// Trim template characters. Runes aligned with 'x' are decoration and get
// deleted; runes aligned with 's' are structure kept unstyled. The wildcard
// position marks the content that receives the style.
const (
	trimDelete = 'x'
	trimHole   = '?'
)

// Rule recovers one kind of marker.
type Rule struct {
	Name     string
	Template *pattern.Template
	Trim     string
	Style    richtext.Style
}

// Rules are applied in order. Code comes first so markers inside code
// blocks are already styled when the later rules run.
var Rules = []Rule{
	{Name: "code", Template: pattern.MustCompile("\n````\n?````\n"), Trim: "xxxxx?xxxxx", Style: richtext.Code},
	{Name: "h1", Template: pattern.MustCompile("\n# ?\n"), Trim: "xx?s", Style: richtext.H1},
	{Name: "h2", Template: pattern.MustCompile("\n## ?\n"), Trim: "xxx?s", Style: richtext.H2},
	{Name: "h3", Template: pattern.MustCompile("\n### ?\n"), Trim: "xxxx?s", Style: richtext.H3},
	{Name: "bold", Template: pattern.MustCompile("**?**"), Trim: "xx?xx", Style: richtext.Bold},
}

// Link templates. The first hole holds the page heading.
var (
	refLink  = pattern.MustCompile(`[?]({{< ref "?" >}} "?")`)
	wikiLink = pattern.MustCompile("[[?]]")
)

// Result counts what a pass changed.
type Result struct {
	Styled int
	Linked int
}

// Changed reports whether anything was recovered.
func (r Result) Changed() bool { return r.Styled > 0 || r.Linked > 0 }

// Recoverer runs the recovery passes.
type Recoverer struct {
	reg    *document.Registry
	logger *slog.Logger
}

// Option configures a Recoverer.
type Option func(*Recoverer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recoverer) {
		r.logger = l
	}
}

// New returns a Recoverer creating link targets in reg.
func New(reg *document.Registry, opts ...Option) *Recoverer {
	r := &Recoverer{reg: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recover runs the style pass and then the link pass over the body of doc.
// Insertion observers of the body are not notified.
func (r *Recoverer) Recover(doc *document.Document) Result {
	var res Result
	doc.Body.Silently(func() {
		res.Styled = r.Styles(doc.Body)
		res.Linked = r.Links(doc)
	})
	if res.Changed() {
		r.logger.Debug("recovery: page updated",
			slog.String("page", doc.Heading()),
			slog.Int("styled", res.Styled),
			slog.Int("linked", res.Linked))
	}
	return res
}

// Styles applies every rule to buf and returns the number of markers
// converted.
func (r *Recoverer) Styles(buf *richtext.Buffer) int {
	n := 0
	for _, rule := range Rules {
		n += r.apply(buf, rule)
	}
	return n
}

func (r *Recoverer) apply(buf *richtext.Buffer, rule Rule) int {
	prefix, suffix, _ := strings.Cut(rule.Trim, string(trimHole))
	n := 0
	cursor := 0
	for {
		m, ok := rule.Template.Find(buf, cursor, buf.Len())
		if !ok {
			return n
		}
		// Markers lying in styled text were recovered already.
		if buf.StyleAt(m.Start) != richtext.None || buf.StyleAt(m.End-1) != richtext.None || m.Holes[0].Len() == 0 {
			cursor = m.End
			continue
		}
		hole := m.Holes[0]
		buf.ApplyStyle(hole.Start, hole.End, rule.Style)

		var drop []int
		for k := 1; k <= len(prefix) && hole.Start-k >= m.Start; k++ {
			if prefix[len(prefix)-k] == trimDelete {
				drop = append(drop, hole.Start-k)
			}
		}
		for k := 0; k < len(suffix) && hole.End+k < m.End; k++ {
			if suffix[k] == trimDelete {
				drop = append(drop, hole.End+k)
			}
		}
		slices.Sort(drop)
		for i := len(drop) - 1; i >= 0; i-- {
			buf.Delete(drop[i], drop[i]+1)
		}
		cursor = m.End - len(drop)
		n++
	}
}

type linkMatch struct {
	pattern.Match
	name string
}

// Links replaces wiki links and internal reference links in the body of doc
// with anchors, last match first. Invalid names are left as text.
func (r *Recoverer) Links(doc *document.Document) int {
	buf := doc.Body
	var found []linkMatch
	for _, tmpl := range []*pattern.Template{refLink, wikiLink} {
		for _, m := range tmpl.FindAll(buf, 0, buf.Len()) {
			found = append(found, linkMatch{Match: m, name: buf.Slice(m.Holes[0].Start, m.Holes[0].End)})
		}
	}
	slices.SortFunc(found, func(a, b linkMatch) int { return a.Start - b.Start })

	var keep []linkMatch
	end := 0
	for _, m := range found {
		if m.Start < end {
			continue
		}
		keep = append(keep, m)
		end = m.End
	}

	n := 0
	for i := len(keep) - 1; i >= 0; i-- {
		m := keep[i]
		if buf.StyleAt(m.Start) == richtext.Code {
			continue
		}
		if !document.ValidLinkName(m.name) {
			r.logger.Debug("recovery: link name rejected",
				slog.String("page", doc.Heading()),
				slog.String("name", m.name))
			continue
		}
		buf.Delete(m.Start, m.End)
		r.reg.InsertAnchor(doc, m.Start, r.reg.FindOrCreate(m.name))
		n++
	}
	return n
}
