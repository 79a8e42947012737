package richtext

// Mark is a position that follows edits to the buffer.
//
// A left-gravity mark stays put when text is inserted exactly at it; a
// right-gravity mark moves past the inserted text. Marks inside a deleted
// range collapse to the start of the deletion.
type Mark struct {
	pos         int
	leftGravity bool
	deleted     bool
}

// Pos returns the current position of the mark.
func (m *Mark) Pos() int { return m.pos }

// Deleted reports whether the mark was removed from its buffer.
func (m *Mark) Deleted() bool { return m.deleted }

// CreateMark places a new mark at pos.
func (b *Buffer) CreateMark(pos int, leftGravity bool) *Mark {
	m := &Mark{pos: b.clamp(pos), leftGravity: leftGravity}
	b.marks[m] = struct{}{}
	return m
}

// DeleteMark detaches m from the buffer. Its position is frozen.
func (b *Buffer) DeleteMark(m *Mark) {
	if m == nil {
		return
	}
	delete(b.marks, m)
	m.deleted = true
}
