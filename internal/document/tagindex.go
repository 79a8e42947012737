package document

import (
	"slices"
	"strings"
)

// Headings of the synthetic entries that head every tag list when the index
// is built WithPlaceholders.
const (
	LinkToHeading  = "< Link to >"
	NewPageHeading = "< New Page >"
)

// Pins of the synthetic entries.
const (
	LinkToPin  = 20
	NewPagePin = 10
)

// NewPlaceholder returns a synthetic pinned page. It is never registered.
func NewPlaceholder(heading string, pin int) *Document {
	d := newDocument(heading)
	d.synthetic = true
	d.Pin = &pin
	return d
}

// TagIndex maps each tag to the pages carrying it, kept sorted with Compare.
type TagIndex struct {
	lists        map[string][]*Document
	placeholders []*Document
}

// IndexOption configures a TagIndex.
type IndexOption func(*TagIndex)

// WithPlaceholders puts the "< Link to >" and "< New Page >" entries at the
// head of every tag list.
func WithPlaceholders() IndexOption {
	return func(ti *TagIndex) {
		ti.placeholders = []*Document{
			NewPlaceholder(LinkToHeading, LinkToPin),
			NewPlaceholder(NewPageHeading, NewPagePin),
		}
	}
}

// NewTagIndex builds an index over reg and keeps it current as pages are
// created and renamed.
func NewTagIndex(reg *Registry, opts ...IndexOption) *TagIndex {
	ti := &TagIndex{lists: make(map[string][]*Document)}
	for _, opt := range opts {
		opt(ti)
	}
	for _, d := range reg.Documents() {
		ti.indexDocument(d)
	}
	reg.OnDocumentCreated(ti.indexDocument)
	reg.OnRenamed(func(ev RenameEvent) { ti.Resort(ev.Document) })
	return ti
}

func (ti *TagIndex) indexDocument(d *Document) {
	for _, tag := range d.tags {
		ti.insert(tag, d)
	}
}

func (ti *TagIndex) insert(tag string, d *Document) int {
	list, ok := ti.lists[tag]
	if !ok {
		list = slices.Clone(ti.placeholders)
		slices.SortFunc(list, Compare)
	}
	if i := slices.Index(list, d); i >= 0 {
		return i
	}
	i, _ := slices.BinarySearchFunc(list, d, Compare)
	// Land after every entry that compares equal, i.e. after the predecessor.
	for i < len(list) && Compare(list[i], d) == 0 {
		i++
	}
	ti.lists[tag] = slices.Insert(list, i, d)
	return i
}

// Add tags d with tag and returns the position of d in the tag list.
func (ti *TagIndex) Add(d *Document, tag string) int {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return -1
	}
	d.addTag(tag)
	return ti.insert(tag, d)
}

// Remove drops tag from d. A page left without tags gets DefaultTag back.
func (ti *TagIndex) Remove(d *Document, tag string) bool {
	if !d.removeTag(tag) {
		return false
	}
	ti.drop(tag, d)
	if len(d.tags) == 0 {
		ti.Add(d, DefaultTag)
	}
	return true
}

func (ti *TagIndex) drop(tag string, d *Document) {
	list := ti.lists[tag]
	if i := slices.Index(list, d); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == len(ti.placeholders) {
		delete(ti.lists, tag)
		return
	}
	ti.lists[tag] = list
}

// SetTags replaces the tags of d.
func (ti *TagIndex) SetTags(d *Document, tags []string) {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			want[t] = struct{}{}
		}
	}
	if len(want) == 0 {
		want[DefaultTag] = struct{}{}
	}
	for _, t := range slices.Clone(d.tags) {
		if _, keep := want[t]; !keep {
			d.removeTag(t)
			ti.drop(t, d)
		}
	}
	for _, t := range sortedKeys(want) {
		ti.Add(d, t)
	}
}

// Resort restores the order of every list holding d, after a rename.
func (ti *TagIndex) Resort(d *Document) {
	for _, tag := range d.tags {
		slices.SortStableFunc(ti.lists[tag], Compare)
	}
}

// Pages returns the ordered entries of tag.
func (ti *TagIndex) Pages(tag string) []*Document {
	return slices.Clone(ti.lists[tag])
}

// Index returns the position of d in the list of tag, or -1.
func (ti *TagIndex) Index(tag string, d *Document) int {
	return slices.Index(ti.lists[tag], d)
}

// Tags returns every tag in use, sorted.
func (ti *TagIndex) Tags() []string {
	return sortedKeys(ti.lists)
}

// TagsNotOn returns the known tags d does not carry, sorted.
func (ti *TagIndex) TagsNotOn(d *Document) []string {
	var out []string
	for _, t := range ti.Tags() {
		if !d.HasTag(t) {
			out = append(out, t)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
