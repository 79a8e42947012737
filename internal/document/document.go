// Package document holds the page model and the registry that resolves page
// headings to pages, plus the tag index built on top of it.
package document

import (
	"slices"
	"unicode"

	"github.com/starford/quire/internal/richtext"
)

const (
	// DefaultTag is given to pages created without tags.
	DefaultTag = "Not tagged"
	// UntitledHeading names pages created without a heading.
	UntitledHeading = "New page"
	// DefaultDraft is the draft flag of new pages.
	DefaultDraft = "true"
)

// Document is one wiki page.
type Document struct {
	heading   string
	tags      []string
	draft     string
	synthetic bool

	// Body is the page content.
	Body *richtext.Buffer
	// Pin forces the page ahead of alphabetical order in tag lists.
	// Higher pins sort first.
	Pin *int
}

func newDocument(heading string) *Document {
	return &Document{
		heading: heading,
		draft:   DefaultDraft,
		Body:    richtext.New(),
	}
}

// Heading returns the page title, which is also its registry key.
func (d *Document) Heading() string { return d.heading }

// Draft returns the draft flag as written in the front matter.
func (d *Document) Draft() string { return d.draft }

// SetDraft updates the draft flag.
func (d *Document) SetDraft(draft string) { d.draft = draft }

// Synthetic reports whether d is a list placeholder rather than a real page.
func (d *Document) Synthetic() bool { return d.synthetic }

// Tags returns a sorted copy of the page tags.
func (d *Document) Tags() []string {
	out := slices.Clone(d.tags)
	slices.Sort(out)
	return out
}

// HasTag reports whether the page carries tag.
func (d *Document) HasTag(tag string) bool {
	return slices.Contains(d.tags, tag)
}

func (d *Document) addTag(tag string) bool {
	if d.HasTag(tag) {
		return false
	}
	d.tags = append(d.tags, tag)
	return true
}

func (d *Document) removeTag(tag string) bool {
	i := slices.Index(d.tags, tag)
	if i < 0 {
		return false
	}
	d.tags = slices.Delete(d.tags, i, i+1)
	return true
}

// AnchorRef is an outgoing link of a page.
type AnchorRef struct {
	Pos    int
	Target *Document
}

// Anchors returns the outgoing links in document order.
func (d *Document) Anchors() []AnchorRef {
	refs := d.Body.Anchors()
	out := make([]AnchorRef, 0, len(refs))
	for _, r := range refs {
		if target, ok := r.Anchor.Target.(*Document); ok {
			out = append(out, AnchorRef{Pos: r.Pos, Target: target})
		}
	}
	return out
}

// LinksTo reports whether d has an anchor to target.
func (d *Document) LinksTo(target *Document) bool {
	for _, a := range d.Anchors() {
		if a.Target == target {
			return true
		}
	}
	return false
}

// ValidLinkName reports whether name can be turned into a link: non-empty,
// printable, and with no whitespace other than plain spaces.
func ValidLinkName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == ' ' {
			continue
		}
		if r == richtext.AnchorRune || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Less orders pages for tag lists: pinned pages first, higher pin first,
// then by heading.
func Less(a, b *Document) bool {
	return Compare(a, b) < 0
}

// Compare is the three-way form of Less.
func Compare(a, b *Document) int {
	switch {
	case a.Pin != nil && b.Pin != nil:
		if *a.Pin != *b.Pin {
			if *a.Pin > *b.Pin {
				return -1
			}
			return 1
		}
	case a.Pin != nil:
		return -1
	case b.Pin != nil:
		return 1
	}
	switch {
	case a.heading < b.heading:
		return -1
	case a.heading > b.heading:
		return 1
	}
	return 0
}
