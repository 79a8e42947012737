package document

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/richtext"
)

// Reference describes the clickable link a host renders where an anchor sits.
type Reference struct {
	Heading string
	Target  *Document
}

// AnchorEvent is emitted after an anchor was inserted into a page.
type AnchorEvent struct {
	Owner     *Document
	Pos       int
	Anchor    *richtext.Anchor
	Reference Reference
}

// RenameEvent is emitted after a page changed its heading.
type RenameEvent struct {
	Document *Document
	Old      string
}

// Registry maps headings to pages. Every page reachable through an anchor is
// registered under its current heading.
//
// A Registry belongs to a single control goroutine.
type Registry struct {
	pages  map[string]*Document
	logger *slog.Logger

	onCreated []func(*Document)
	onAnchor  []func(AnchorEvent)
	onRenamed []func(RenameEvent)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		pages:  make(map[string]*Document),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOption sets fields of a page created by the registry.
type CreateOption func(*Document)

// WithTags gives a new page its tags.
func WithTags(tags ...string) CreateOption {
	return func(d *Document) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				d.addTag(t)
			}
		}
	}
}

// WithDraft sets the draft flag of a new page.
func WithDraft(draft string) CreateOption {
	return func(d *Document) {
		if draft != "" {
			d.draft = draft
		}
	}
}

// OnDocumentCreated registers fn to run after a page is created.
func (r *Registry) OnDocumentCreated(fn func(*Document)) {
	r.onCreated = append(r.onCreated, fn)
}

// OnAnchorCreated registers fn to run after an anchor is inserted.
func (r *Registry) OnAnchorCreated(fn func(AnchorEvent)) {
	r.onAnchor = append(r.onAnchor, fn)
}

// OnRenamed registers fn to run after a page is renamed.
func (r *Registry) OnRenamed(fn func(RenameEvent)) {
	r.onRenamed = append(r.onRenamed, fn)
}

// Find looks a page up by heading.
func (r *Registry) Find(heading string) (*Document, bool) {
	d, ok := r.pages[heading]
	return d, ok
}

// Len returns the number of registered pages.
func (r *Registry) Len() int { return len(r.pages) }

// Documents returns every page sorted by heading.
func (r *Registry) Documents() []*Document {
	out := make([]*Document, 0, len(r.pages))
	for _, d := range r.pages {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Document) int { return strings.Compare(a.heading, b.heading) })
	return out
}

// FindOrCreate returns the page registered under heading, creating it when
// absent. Options only apply to a newly created page.
func (r *Registry) FindOrCreate(heading string, opts ...CreateOption) *Document {
	if d, ok := r.pages[heading]; ok {
		return d
	}
	d := newDocument(heading)
	for _, opt := range opts {
		opt(d)
	}
	if len(d.tags) == 0 {
		d.addTag(DefaultTag)
	}
	r.pages[heading] = d
	r.logger.Debug("document created", slog.String("heading", heading))
	for _, fn := range r.onCreated {
		fn(d)
	}
	return d
}

// CreateUntitled creates a page named UntitledHeading, numbering it when
// that heading is taken.
func (r *Registry) CreateUntitled(opts ...CreateOption) *Document {
	heading := UntitledHeading
	for n := 2; ; n++ {
		if _, taken := r.pages[heading]; !taken {
			break
		}
		heading = UntitledHeading + " " + strconv.Itoa(n)
	}
	return r.FindOrCreate(heading, opts...)
}

// Rename moves doc to newHeading. Anchors keep pointing at doc.
// Renaming to the current heading is a no-op.
func (r *Registry) Rename(doc *Document, newHeading string) error {
	if newHeading == doc.heading {
		r.logger.Warn("rename to the same heading ignored", slog.String("heading", newHeading))
		return nil
	}
	if strings.TrimSpace(newHeading) == "" {
		return fmt.Errorf("document: rename %q: empty heading", doc.heading)
	}
	if cur, ok := r.pages[doc.heading]; !ok || cur != doc {
		return fmt.Errorf("document: rename %q: %w", doc.heading, apperr.ErrNotFound)
	}
	if _, taken := r.pages[newHeading]; taken {
		return fmt.Errorf("document: rename %q to %q: %w", doc.heading, newHeading, apperr.ErrConflict)
	}
	old := doc.heading
	r.pages[newHeading] = doc
	delete(r.pages, old)
	doc.heading = newHeading
	for _, fn := range r.onRenamed {
		fn(RenameEvent{Document: doc, Old: old})
	}
	return nil
}

// InsertAnchor embeds a link to target into owner at pos and notifies
// observers with a renderable reference.
func (r *Registry) InsertAnchor(owner *Document, pos int, target *Document) AnchorEvent {
	a := owner.Body.InsertAnchor(pos, target)
	ev := AnchorEvent{
		Owner:     owner,
		Pos:       pos,
		Anchor:    a,
		Reference: Reference{Heading: target.heading, Target: target},
	}
	for _, fn := range r.onAnchor {
		fn(ev)
	}
	return ev
}

// Backlinks returns the registered pages that link to target, by heading.
func (r *Registry) Backlinks(target *Document) []*Document {
	var out []*Document
	for _, d := range r.Documents() {
		if d.LinksTo(target) {
			out = append(out, d)
		}
	}
	return out
}
