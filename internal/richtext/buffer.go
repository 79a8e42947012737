// Package richtext implements the editable styled text model that pages are
// decoded into: a sequence of runes, each carrying at most one style, with
// embedded anchors referencing other pages.
package richtext

import (
	"strings"
	"unicode/utf8"
)

// AnchorRune is the placeholder character an anchor occupies in the text.
const AnchorRune = '\uFFFC'

// Target is whatever an anchor points at.
type Target interface {
	Heading() string
}

// Anchor is an embedded reference to another page.
type Anchor struct {
	Target Target
}

type cell struct {
	r      rune
	style  Style
	anchor *Anchor
}

// InsertFunc observes insertions. pos is where the inserted text starts.
type InsertFunc func(pos int, text string)

// Buffer is a styled text buffer with marks and insertion observers.
// It is not safe for concurrent use.
type Buffer struct {
	cells    []cell
	marks    map[*Mark]struct{}
	onInsert []InsertFunc
	muted    int
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{marks: make(map[*Mark]struct{})}
}

// NewFromString returns a buffer holding s without styles.
func NewFromString(s string) *Buffer {
	b := New()
	b.Insert(0, s)
	return b
}

// Len returns the length in runes.
func (b *Buffer) Len() int { return len(b.cells) }

// OnInsert registers fn to run after every insertion.
func (b *Buffer) OnInsert(fn InsertFunc) {
	b.onInsert = append(b.onInsert, fn)
}

func (b *Buffer) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(b.cells) {
		return len(b.cells)
	}
	return pos
}

// Insert inserts unstyled text at pos.
func (b *Buffer) Insert(pos int, text string) {
	b.InsertStyled(pos, text, None)
}

// InsertStyled inserts text carrying style at pos.
func (b *Buffer) InsertStyled(pos int, text string, style Style) {
	if text == "" {
		return
	}
	pos = b.clamp(pos)
	ins := make([]cell, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		ins = append(ins, cell{r: r, style: style})
	}
	b.splice(pos, ins)
	b.notify(pos, text)
}

// InsertAnchor embeds an anchor to target at pos.
func (b *Buffer) InsertAnchor(pos int, target Target) *Anchor {
	pos = b.clamp(pos)
	a := &Anchor{Target: target}
	b.splice(pos, []cell{{r: AnchorRune, anchor: a}})
	b.notify(pos, string(AnchorRune))
	return a
}

func (b *Buffer) splice(pos int, ins []cell) {
	n := len(ins)
	b.cells = append(b.cells, ins...)
	copy(b.cells[pos+n:], b.cells[pos:len(b.cells)-n])
	copy(b.cells[pos:], ins)
	for m := range b.marks {
		if m.pos > pos || (m.pos == pos && !m.leftGravity) {
			m.pos += n
		}
	}
}

// Silently runs fn with insertion observers suppressed.
func (b *Buffer) Silently(fn func()) {
	b.muted++
	defer func() { b.muted-- }()
	fn()
}

func (b *Buffer) notify(pos int, text string) {
	if b.muted > 0 {
		return
	}
	for _, fn := range b.onInsert {
		fn(pos, text)
	}
}

// Delete removes the runes in [start, end).
func (b *Buffer) Delete(start, end int) {
	start, end = b.clamp(start), b.clamp(end)
	if start >= end {
		return
	}
	n := end - start
	b.cells = append(b.cells[:start], b.cells[end:]...)
	for m := range b.marks {
		switch {
		case m.pos >= end:
			m.pos -= n
		case m.pos > start:
			m.pos = start
		}
	}
}

// ApplyStyle sets style on every text rune in [start, end). Anchors are left
// untouched.
func (b *Buffer) ApplyStyle(start, end int, style Style) {
	start, end = b.clamp(start), b.clamp(end)
	for i := start; i < end; i++ {
		if b.cells[i].anchor == nil {
			b.cells[i].style = style
		}
	}
}

// StyleAt returns the style at pos, or None when pos is out of range.
func (b *Buffer) StyleAt(pos int) Style {
	if pos < 0 || pos >= len(b.cells) {
		return None
	}
	return b.cells[pos].style
}

// RuneAt returns the rune at pos, or 0 when pos is out of range.
func (b *Buffer) RuneAt(pos int) rune {
	if pos < 0 || pos >= len(b.cells) {
		return 0
	}
	return b.cells[pos].r
}

// AnchorAt returns the anchor at pos, if any.
func (b *Buffer) AnchorAt(pos int) *Anchor {
	if pos < 0 || pos >= len(b.cells) {
		return nil
	}
	return b.cells[pos].anchor
}

// Slice returns the text in [start, end). Anchors appear as AnchorRune.
func (b *Buffer) Slice(start, end int) string {
	start, end = b.clamp(start), b.clamp(end)
	var sb strings.Builder
	for i := start; i < end; i++ {
		sb.WriteRune(b.cells[i].r)
	}
	return sb.String()
}

// Text returns the whole buffer as plain text.
func (b *Buffer) Text() string { return b.Slice(0, len(b.cells)) }

// PlainText returns the text with anchors replaced by their target headings.
func (b *Buffer) PlainText() string {
	var sb strings.Builder
	for _, c := range b.cells {
		if c.anchor != nil {
			sb.WriteString(c.anchor.Target.Heading())
			continue
		}
		sb.WriteRune(c.r)
	}
	return sb.String()
}

// AnchorRef locates an anchor within the buffer.
type AnchorRef struct {
	Pos    int
	Anchor *Anchor
}

// Anchors lists every anchor in document order.
func (b *Buffer) Anchors() []AnchorRef {
	var out []AnchorRef
	for i, c := range b.cells {
		if c.anchor != nil {
			out = append(out, AnchorRef{Pos: i, Anchor: c.anchor})
		}
	}
	return out
}

// Reset drops all content. Marks collapse to 0.
func (b *Buffer) Reset() {
	b.Delete(0, len(b.cells))
}
