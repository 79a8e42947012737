// Package linktyping turns "[[Name]]" typed into a live page into an anchor.
//
// The detector follows insertions one rune at a time. When the closing
// brackets arrive it does not touch the buffer from inside the insertion
// notification; the conversion is deferred to the next turn of the loop
// queue, where it checks that the brackets are still in place.
package linktyping

import (
	"log/slog"

	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/loop"
	"github.com/starford/quire/internal/richtext"
)

// State is the position of the detector in the "[[Name]]" pattern.
type State int

const (
	Idle State = iota
	AwaitingOpenBracket
	InsideLink
	AwaitingCloseBracket
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingOpenBracket:
		return "awaiting-open-bracket"
	case InsideLink:
		return "inside-link"
	case AwaitingCloseBracket:
		return "awaiting-close-bracket"
	}
	return "unknown"
}

const (
	openBrackets  = "[["
	closeBrackets = "]]"
)

// Detector watches the body of one page.
type Detector struct {
	reg    *document.Registry
	doc    *document.Document
	queue  *loop.Queue
	logger *slog.Logger

	state State
	next  int // position the next typed rune must land at to continue
	start *richtext.Mark
	end   *richtext.Mark
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// Attach starts watching insertions into the body of doc. Conversions are
// deferred to queue and resolve their targets in reg.
func Attach(reg *document.Registry, doc *document.Document, queue *loop.Queue, opts ...Option) *Detector {
	d := &Detector{
		reg:    reg,
		doc:    doc,
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	doc.Body.OnInsert(d.inserted)
	return d
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

func (d *Detector) inserted(pos int, text string) {
	for _, r := range text {
		d.feed(pos, r)
		pos++
	}
}

func (d *Detector) feed(pos int, r rune) {
	// Typing somewhere else abandons a half-typed link.
	if d.state != Idle && pos != d.next {
		d.reset()
	}
	d.next = pos + 1
	buf := d.doc.Body

	switch d.state {
	case Idle:
		if r == '[' {
			d.state = AwaitingOpenBracket
		}
	case AwaitingOpenBracket:
		if r == '[' {
			d.start = buf.CreateMark(pos+1, true)
			d.state = InsideLink
			return
		}
		d.state = Idle
	case InsideLink:
		if r == ']' {
			d.end = buf.CreateMark(pos, false)
			d.state = AwaitingCloseBracket
		}
	case AwaitingCloseBracket:
		if r == ']' {
			d.complete()
			return
		}
		buf.DeleteMark(d.end)
		d.end = nil
		d.state = InsideLink
	}
}

func (d *Detector) reset() {
	d.doc.Body.DeleteMark(d.start)
	d.doc.Body.DeleteMark(d.end)
	d.start, d.end = nil, nil
	d.state = Idle
}

func (d *Detector) complete() {
	buf := d.doc.Body
	start, end := d.start, d.end
	d.start, d.end = nil, nil
	d.state = Idle

	name := buf.Slice(start.Pos(), end.Pos())
	if !document.ValidLinkName(name) {
		d.logger.Debug("linktyping: link name rejected",
			slog.String("page", d.doc.Heading()),
			slog.String("name", name))
		buf.DeleteMark(start)
		buf.DeleteMark(end)
		return
	}
	d.queue.Defer(func() { d.convert(start, end, name) })
}

// convert replaces "[[name]]" between the marks with an anchor. Edits made
// since the link was typed may have broken the brackets or changed the
// name; the link is then left as text.
func (d *Detector) convert(start, end *richtext.Mark, name string) {
	buf := d.doc.Body
	defer buf.DeleteMark(start)
	defer buf.DeleteMark(end)

	from, to := start.Pos()-len(openBrackets), end.Pos()+len(closeBrackets)
	if from < 0 || to > buf.Len() ||
		buf.Slice(from, start.Pos()) != openBrackets ||
		buf.Slice(end.Pos(), to) != closeBrackets ||
		buf.Slice(start.Pos(), end.Pos()) != name {
		d.logger.Warn("linktyping: link changed before conversion",
			slog.String("page", d.doc.Heading()),
			slog.String("name", name))
		return
	}

	buf.Silently(func() {
		buf.Delete(from, to)
		d.reg.InsertAnchor(d.doc, from, d.reg.FindOrCreate(name))
	})
	d.logger.Debug("linktyping: link created",
		slog.String("page", d.doc.Heading()),
		slog.String("target", name))
}
