package richtext

// Span is a run of text sharing one style, or a single anchor.
type Span struct {
	Text   string
	Style  Style
	Anchor *Anchor
}

// IsAnchor reports whether the span is an anchor.
func (s Span) IsAnchor() bool { return s.Anchor != nil }

// Spans returns the buffer as coalesced spans in document order.
func (b *Buffer) Spans() []Span {
	var out []Span
	for i := 0; i < len(b.cells); {
		c := b.cells[i]
		if c.anchor != nil {
			out = append(out, Span{Text: string(AnchorRune), Anchor: c.anchor})
			i++
			continue
		}
		j := i + 1
		for j < len(b.cells) && b.cells[j].anchor == nil && b.cells[j].style == c.style {
			j++
		}
		out = append(out, Span{Text: b.Slice(i, j), Style: c.style})
		i = j
	}
	return out
}

// AppendSpans writes spans at the end of the buffer.
func (b *Buffer) AppendSpans(spans ...Span) {
	for _, s := range spans {
		if s.Anchor != nil {
			b.InsertAnchor(b.Len(), s.Anchor.Target)
			continue
		}
		b.InsertStyled(b.Len(), s.Text, s.Style)
	}
}
