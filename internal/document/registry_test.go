package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/apperr"
)

func TestFindOrCreateDefaults(t *testing.T) {
	reg := NewRegistry()
	var created []*Document
	reg.OnDocumentCreated(func(d *Document) { created = append(created, d) })

	d := reg.FindOrCreate("Alpha")
	assert.Equal(t, "Alpha", d.Heading())
	assert.Equal(t, []string{DefaultTag}, d.Tags())
	assert.Equal(t, DefaultDraft, d.Draft())
	assert.Same(t, d, reg.FindOrCreate("Alpha"))
	require.Len(t, created, 1)

	e := reg.FindOrCreate("Beta", WithTags("b", " ", "a"), WithDraft("false"))
	assert.Equal(t, []string{"a", "b"}, e.Tags())
	assert.Equal(t, "false", e.Draft())
	assert.Len(t, created, 2)
	assert.Equal(t, 2, reg.Len())
}

func TestCreateUntitledNumbers(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, "New page", reg.CreateUntitled().Heading())
	assert.Equal(t, "New page 2", reg.CreateUntitled().Heading())
	assert.Equal(t, "New page 3", reg.CreateUntitled().Heading())
}

func TestRenamePreservesGraph(t *testing.T) {
	reg := NewRegistry()
	a := reg.FindOrCreate("A")
	b := reg.FindOrCreate("B")
	reg.InsertAnchor(b, 0, a)

	var renames []RenameEvent
	reg.OnRenamed(func(ev RenameEvent) { renames = append(renames, ev) })

	require.NoError(t, reg.Rename(a, "A'"))

	_, ok := reg.Find("A")
	assert.False(t, ok)
	got, ok := reg.Find("A'")
	require.True(t, ok)
	assert.Same(t, a, got)

	anchors := b.Anchors()
	require.Len(t, anchors, 1)
	assert.Same(t, a, anchors[0].Target)
	assert.Equal(t, "A'", anchors[0].Target.Heading())

	require.Len(t, renames, 1)
	assert.Equal(t, "A", renames[0].Old)
}

func TestRenameNoOpAndErrors(t *testing.T) {
	reg := NewRegistry()
	a := reg.FindOrCreate("A")
	reg.FindOrCreate("B")

	calls := 0
	reg.OnRenamed(func(RenameEvent) { calls++ })

	require.NoError(t, reg.Rename(a, "A"))
	assert.Equal(t, 0, calls)

	assert.ErrorIs(t, reg.Rename(a, "B"), apperr.ErrConflict)
	assert.Error(t, reg.Rename(a, "  "))

	stray := newDocument("Stray")
	assert.ErrorIs(t, reg.Rename(stray, "Other"), apperr.ErrNotFound)
	assert.Equal(t, 0, calls)
}

func TestInsertAnchorEmitsReference(t *testing.T) {
	reg := NewRegistry()
	owner := reg.FindOrCreate("Owner")
	owner.Body.Insert(0, "see ")
	target := reg.FindOrCreate("Target")

	var events []AnchorEvent
	reg.OnAnchorCreated(func(ev AnchorEvent) { events = append(events, ev) })

	ev := reg.InsertAnchor(owner, 4, target)
	require.Len(t, events, 1)
	assert.Equal(t, ev, events[0])
	assert.Equal(t, Reference{Heading: "Target", Target: target}, ev.Reference)
	assert.Same(t, owner, ev.Owner)
	assert.Equal(t, 4, ev.Pos)
	assert.True(t, owner.LinksTo(target))
	assert.Equal(t, []*Document{owner}, reg.Backlinks(target))
}

func TestDocumentsSorted(t *testing.T) {
	reg := NewRegistry()
	for _, h := range []string{"c", "a", "b"} {
		reg.FindOrCreate(h)
	}
	var got []string
	for _, d := range reg.Documents() {
		got = append(got, d.Heading())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestValidLinkName(t *testing.T) {
	cases := map[string]bool{
		"Page":          true,
		"Page with gap": true,
		"":              false,
		"tab\there":     false,
		"line\nbreak":   false,
		"bell\a":        false,
		"nbsp\u00a0x":   false,
	}
	for name, want := range cases {
		assert.Equal(t, want, ValidLinkName(name), "name %q", name)
	}
}

func TestCompareWithPins(t *testing.T) {
	low, high := 10, 20
	a := newDocument("a")
	z := newDocument("z")
	p1 := newDocument("p1")
	p1.Pin = &low
	p2 := newDocument("p2")
	p2.Pin = &high

	assert.True(t, Less(a, z))
	assert.True(t, Less(p1, a))
	assert.True(t, Less(p2, p1))
	assert.False(t, Less(z, p1))
	assert.Equal(t, 0, Compare(a, a))
}
