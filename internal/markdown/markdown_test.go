package markdown

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/richtext"
)

const allTags = "---\n" +
	"title: \"Test MD file\"\n" +
	"draft: true\n" +
	"tags:\n" +
	"  - Tag 1\n" +
	"---\n" +
	"# Header 1\n" +
	"some text\n" +
	"some more text\n" +
	"\n" +
	"## Header 2\n" +
	"And some text. **bold text**.\n" +
	"### Header 3\n" +
	"some text\n" +
	"````\n" +
	"Code in monospace\n" +
	"````\n" +
	"Ending text\n"

const allTagsJustText = "Header 1\nsome text\nsome more text\n\nHeader 2\nAnd some text. bold text.\nHeader 3\nsome text\nCode in monospace\nEnding text"

func decode(t *testing.T, reg *document.Registry, src string) *document.Document {
	t.Helper()
	doc, err := NewDecoder(reg).Decode([]byte(src))
	require.NoError(t, err)
	return doc
}

func TestRoundTripAllTags(t *testing.T) {
	reg := document.NewRegistry()
	doc := decode(t, reg, allTags)

	assert.Equal(t, "Test MD file", doc.Heading())
	assert.Equal(t, "true", doc.Draft())
	assert.Equal(t, []string{"Tag 1"}, doc.Tags())
	assert.Equal(t, allTagsJustText+"\n", doc.Body.Text())
	assert.Equal(t, allTags, string(Encode(doc)))
}

func TestDecodedStyles(t *testing.T) {
	reg := document.NewRegistry()
	doc := decode(t, reg, allTags)

	var styled []richtext.Span
	for _, s := range doc.Body.Spans() {
		if s.Style != richtext.None {
			styled = append(styled, s)
		}
	}
	assert.Equal(t, []richtext.Span{
		{Text: "Header 1", Style: richtext.H1},
		{Text: "Header 2", Style: richtext.H2},
		{Text: "bold text", Style: richtext.Bold},
		{Text: "Header 3", Style: richtext.H3},
		{Text: "Code in monospace\n", Style: richtext.Code},
	}, styled)
}

func TestEndToEndScenario(t *testing.T) {
	src := "---\ntitle: \"T\"\ndraft: true\ntags:\n  - Tag 1\n---\n# Header 1\nsome text\n"
	reg := document.NewRegistry()
	doc := decode(t, reg, src)

	assert.Equal(t, "T", doc.Heading())
	assert.Equal(t, []string{"Tag 1"}, doc.Tags())
	spans := doc.Body.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, richtext.Span{Text: "Header 1", Style: richtext.H1}, spans[0])
	assert.Equal(t, richtext.Span{Text: "\nsome text\n"}, spans[1])

	assert.Equal(t, src, string(Encode(doc)))
}

func TestInternalLinkBecomesAnchor(t *testing.T) {
	src := "---\ntitle: \"Home\"\ndraft: false\ntags:\n  - index\n---\n" +
		"Go to [Other Page]({{< ref \"other_page.md\" >}} \"Other Page\") now.\n"
	reg := document.NewRegistry()
	var events []document.AnchorEvent
	reg.OnAnchorCreated(func(ev document.AnchorEvent) { events = append(events, ev) })

	doc := decode(t, reg, src)

	target, ok := reg.Find("Other Page")
	require.True(t, ok, "link target is created on reference")
	anchors := doc.Anchors()
	require.Len(t, anchors, 1)
	assert.Same(t, target, anchors[0].Target)
	assert.Equal(t, 6, anchors[0].Pos)
	require.Len(t, events, 1)
	assert.Equal(t, "Other Page", events[0].Reference.Heading)

	assert.Equal(t, src, string(Encode(doc)))
}

func TestLinkResolvesToLoadedPage(t *testing.T) {
	reg := document.NewRegistry()
	other := decode(t, reg, "---\ntitle: \"Other\"\ndraft: true\ntags:\n  - x\n---\nbody\n")
	doc := decode(t, reg, "---\ntitle: \"Home\"\ndraft: true\ntags:\n  - x\n---\n"+Link("Other")+"\n")

	require.Len(t, doc.Anchors(), 1)
	assert.Same(t, other, doc.Anchors()[0].Target)
	assert.Equal(t, 2, reg.Len())
}

func TestExternalLinkKeptAsText(t *testing.T) {
	src := "---\ntitle: \"Ext\"\ndraft: true\ntags:\n  - x\n---\n" +
		"See [site](https://example.com \"Example\") and `code`.\n"
	reg := document.NewRegistry()
	doc := decode(t, reg, src)

	assert.Empty(t, doc.Anchors())
	assert.Equal(t, "See [site](https://example.com \"Example\") and `code`.\n", doc.Body.Text())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, src, string(Encode(doc)))
}

func TestUnmodelledBlocksKeptVerbatim(t *testing.T) {
	src := "---\ntitle: \"Lists\"\ndraft: true\ntags:\n  - x\n---\n" +
		"Intro\n\n- one\n- two\n\n> quoted\n\n#### Deep heading\n\nOutro\n"
	reg := document.NewRegistry()
	doc := decode(t, reg, src)

	assert.Equal(t, "Intro\n\n- one\n- two\n\n> quoted\n\n#### Deep heading\n\nOutro\n", doc.Body.Text())
	assert.Equal(t, src, string(Encode(doc)))
}

func TestHeadingWithNonTextChildKeepsLine(t *testing.T) {
	src := "---\ntitle: \"H\"\ndraft: true\ntags:\n  - x\n---\n# A **loud** title\ntext\n"
	doc := decode(t, document.NewRegistry(), src)

	assert.Equal(t, richtext.None, doc.Body.StyleAt(0))
	assert.Equal(t, "# A **loud** title\ntext\n", doc.Body.Text())
}

func TestEmphasisRoundTrip(t *testing.T) {
	src := "---\ntitle: \"E\"\ndraft: true\ntags:\n  - x\n---\nsome *soft* and **hard** words\n"
	doc := decode(t, document.NewRegistry(), src)

	assert.Equal(t, richtext.Emph, doc.Body.StyleAt(5))
	assert.Equal(t, richtext.Bold, doc.Body.StyleAt(14))
	assert.Equal(t, src, string(Encode(doc)))
}

func TestFrontMatterErrors(t *testing.T) {
	reg := document.NewRegistry()
	for _, src := range []string{
		"# no front matter\n",
		"---\ntitle: \"x\"\n",
		"---\ndraft: true\n---\nbody\n",
		"---\ntitle: [unclosed\n---\n",
	} {
		_, err := NewDecoder(reg).Decode([]byte(src))
		assert.ErrorIs(t, err, apperr.ErrNotDocument, "input %q", src)
	}
	assert.Equal(t, 0, reg.Len())
}

func TestSplitFrontMatterDefaults(t *testing.T) {
	fm, body, err := SplitFrontMatter([]byte("---\ntitle: Bare\n---\n\n\n  text  \n\n"))
	require.NoError(t, err)
	assert.Equal(t, "Bare", fm.Title)
	assert.Equal(t, document.DefaultDraft, fm.Draft)
	assert.Empty(t, fm.Tags)
	assert.Equal(t, "  text\n", body)

	_, body, err = SplitFrontMatter([]byte("---\ntitle: Empty\n---"))
	require.NoError(t, err)
	assert.Equal(t, "", body)
}

func TestRedecodeExistingPage(t *testing.T) {
	reg := document.NewRegistry()
	ti := document.NewTagIndex(reg)
	dec := NewDecoder(reg, WithTagIndex(ti))

	// A link creates the page before its own file is read.
	placeholder := reg.FindOrCreate("Later")
	assert.Equal(t, []string{document.DefaultTag}, placeholder.Tags())

	doc, err := dec.Decode([]byte("---\ntitle: \"Later\"\ndraft: false\ntags:\n  - real\n---\nnow loaded\n"))
	require.NoError(t, err)
	assert.Same(t, placeholder, doc)
	assert.Equal(t, []string{"real"}, doc.Tags())
	assert.Equal(t, "false", doc.Draft())
	assert.Equal(t, "now loaded\n", doc.Body.Text())
	assert.Empty(t, ti.Pages(document.DefaultTag))
}

func TestDecodeBodyIsSilent(t *testing.T) {
	reg := document.NewRegistry()
	doc := reg.FindOrCreate("Quiet")
	calls := 0
	doc.Body.OnInsert(func(int, string) { calls++ })

	NewDecoder(reg).DecodeBody(doc, "[\n")
	assert.Equal(t, 0, calls)
	assert.Equal(t, "[\n", doc.Body.Text())
}

func TestEncodeCodeFenceNewlineRule(t *testing.T) {
	buf := richtext.NewFromString("before")
	buf.InsertStyled(buf.Len(), "code", richtext.Code)
	buf.Insert(buf.Len(), "after\n")

	got := NewEncoder(nil).EncodeBody(buf)
	assert.Equal(t, "before\n````\ncode\n````\nafter\n", got)
}

func TestEncodeClosesStylesAtEnd(t *testing.T) {
	buf := richtext.NewFromString("tail ")
	buf.InsertStyled(buf.Len(), "bold", richtext.Bold)
	assert.Equal(t, "tail **bold**", NewEncoder(nil).EncodeBody(buf))

	code := richtext.New()
	code.InsertStyled(0, "x = 1", richtext.Code)
	assert.Equal(t, "````\nx = 1\n````\n", NewEncoder(nil).EncodeBody(code))
}

func TestEncodeBoldKeepsSpacesOutside(t *testing.T) {
	buf := richtext.NewFromString("a")
	buf.InsertStyled(buf.Len(), " b ", richtext.Bold)
	buf.Insert(buf.Len(), "c")
	assert.Equal(t, "a **b** c", NewEncoder(nil).EncodeBody(buf))
}

func TestEncodeAnchor(t *testing.T) {
	reg := document.NewRegistry()
	doc := reg.FindOrCreate("Page", document.WithTags("b", "a"))
	doc.Body.Insert(0, "link: \n")
	reg.InsertAnchor(doc, 6, reg.FindOrCreate("Crème Brûlée"))

	want := "---\ntitle: \"Page\"\ndraft: true\ntags:\n  - a\n  - b\n---\n" +
		"link: [Crème Brûlée]({{< ref \"creme_brulee.md\" >}} \"Crème Brûlée\")\n"
	assert.Equal(t, want, string(Encode(doc)))
}

func TestEncodeQuotesTitle(t *testing.T) {
	reg := document.NewRegistry()
	doc := reg.FindOrCreate(`Say "hi"`)
	out := Encode(doc)

	again, err := NewDecoder(document.NewRegistry()).Decode(out)
	require.NoError(t, err)
	assert.Equal(t, `Say "hi"`, again.Heading())
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"Hello World":  "hello_world.md",
		"Crème Brûlée": "creme_brulee.md",
		"already_low":  "already_low.md",
		"Café Déjà":    "cafe_deja.md",
	}
	for in, want := range cases {
		assert.Equal(t, want, Filename(in), "heading %q", in)
	}
}

func TestSummarize(t *testing.T) {
	src := "---\ntitle: \"Hub\"\ndraft: false\n---\n" +
		"To " + Link("A") + " and " + Link("B") + ", then " + Link("A") + " again.\n"

	s, err := Summarize([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "Hub", s.Title)
	assert.Equal(t, "false", s.Draft)
	assert.Equal(t, []string{document.DefaultTag}, s.Tags)
	assert.Equal(t, "To A and B, then A again.\n", s.Text)
	assert.Equal(t, []string{"A", "B"}, s.Links)

	_, err = Summarize([]byte("plain text"))
	assert.ErrorIs(t, err, apperr.ErrNotDocument)
}

func TestTagsNeedingQuotesSurviveSave(t *testing.T) {
	tags := []string{"todo: later", "#hash", "-dash", `say "hi"`, "plain tag", "true", "a #b"}
	reg := document.NewRegistry()
	doc := reg.FindOrCreate("Page", document.WithTags(tags...))
	out := string(Encode(doc))

	assert.Contains(t, out, "  - plain tag\n")
	assert.Contains(t, out, "  - \"todo: later\"\n")

	again, err := NewDecoder(document.NewRegistry()).Decode([]byte(out))
	require.NoError(t, err)
	assert.ElementsMatch(t, tags, again.Tags())
	assert.Equal(t, out, string(Encode(again)))
}

func TestShortcodeInsideCodeKeptLiterally(t *testing.T) {
	link := `[X]({{< ref "x.md" >}} "X")`
	src := "---\ntitle: \"C\"\ndraft: true\ntags:\n  - x\n---\n" +
		"See " + "`" + link + "`" + " and ({{<ref \"y.md\">}} bare.\n" +
		"````\n" + link + "\n````\n" +
		"Then " + link + ".\n"
	reg := document.NewRegistry()
	doc := decode(t, reg, src)

	var code string
	for _, s := range doc.Body.Spans() {
		if s.Style == richtext.Code {
			code += s.Text
		}
	}
	assert.Equal(t, link+"\n", code)
	assert.Contains(t, doc.Body.Text(), "`"+link+"`")
	assert.Contains(t, doc.Body.Text(), `({{<ref "y.md">}} bare.`)
	require.Len(t, doc.Anchors(), 1, "only the link outside code becomes an anchor")
	assert.Equal(t, src, string(Encode(doc)))
}

func TestBodyIndentationKept(t *testing.T) {
	_, body, err := SplitFrontMatter([]byte("---\ntitle: \"I\"\n---\n\n  \n    indented code\n\n  - nested\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "    indented code\n\n  - nested\n", body)

	src := "---\ntitle: \"I\"\ndraft: true\ntags:\n  - x\n---\n    indented code\n\ntext\n"
	doc := decode(t, document.NewRegistry(), src)
	assert.Equal(t, "    indented code\n\ntext\n", doc.Body.Text())
	assert.Equal(t, src, string(Encode(doc)))
}

func TestEncodeWellFormedPageLogsNoWarning(t *testing.T) {
	var logs bytes.Buffer
	enc := NewEncoder(slog.New(slog.NewTextHandler(&logs, nil)))

	doc := document.NewRegistry().FindOrCreate("Code last")
	doc.Body.Insert(0, "intro\n")
	doc.Body.InsertStyled(doc.Body.Len(), "x = 1\n", richtext.Code)
	enc.Encode(doc)

	bold := document.NewRegistry().FindOrCreate("Bold last")
	bold.Body.InsertStyled(0, "loud", richtext.Bold)
	enc.Encode(bold)

	assert.Empty(t, logs.String())
}

// piece is a span compared by value: anchors by target heading.
type piece struct {
	Text  string
	Style richtext.Style
	Link  string
}

func build(reg *document.Registry, heading string, pieces ...piece) *document.Document {
	doc := reg.FindOrCreate(heading, document.WithTags("t"))
	for _, p := range pieces {
		if p.Link != "" {
			reg.InsertAnchor(doc, doc.Body.Len(), reg.FindOrCreate(p.Link))
			continue
		}
		doc.Body.InsertStyled(doc.Body.Len(), p.Text, p.Style)
	}
	return doc
}

func piecesOf(doc *document.Document) []piece {
	var out []piece
	for _, s := range doc.Body.Spans() {
		if s.IsAnchor() {
			out = append(out, piece{Link: s.Anchor.Target.Heading()})
			continue
		}
		out = append(out, piece{Text: s.Text, Style: s.Style})
	}
	return out
}

func TestDocumentSurvivesEncodeDecode(t *testing.T) {
	cases := map[string][]piece{
		"headings": {
			{Text: "Title", Style: richtext.H1},
			{Text: "\nintro line\n"},
			{Text: "Section", Style: richtext.H2},
			{Text: "\n"},
			{Text: "Sub", Style: richtext.H3},
			{Text: "\nend\n"},
		},
		"inline styles": {
			{Text: "plain "},
			{Text: "strong", Style: richtext.Bold},
			{Text: " and "},
			{Text: "soft", Style: richtext.Emph},
			{Text: " words\n"},
		},
		"code": {
			{Text: "before\n"},
			{Text: "x := 1\n[X]({{< ref \"x.md\" >}} \"X\")\n", Style: richtext.Code},
			{Text: "after\n"},
		},
		"anchors": {
			{Text: "See "},
			{Link: "Other Page"},
			{Text: " and "},
			{Link: "Crème Brûlée"},
			{Text: ".\n"},
			{Link: "Other Page"},
			{Text: " "},
			{Text: "next", Style: richtext.Bold},
			{Text: "\n"},
		},
		"mixed": {
			{Text: "Notes", Style: richtext.H1},
			{Text: "\nread "},
			{Link: "Book"},
			{Text: " "},
			{Text: "today", Style: richtext.Emph},
			{Text: "\n"},
			{Text: "go test ./...\n", Style: richtext.Code},
			{Text: "done\n"},
		},
	}
	for name, pieces := range cases {
		t.Run(name, func(t *testing.T) {
			doc := build(document.NewRegistry(), "Page", pieces...)
			out := Encode(doc)

			reg := document.NewRegistry()
			again := decode(t, reg, string(out))
			assert.Equal(t, piecesOf(doc), piecesOf(again), "markdown:\n%s", out)
			for _, a := range again.Anchors() {
				target, ok := reg.Find(a.Target.Heading())
				require.True(t, ok)
				assert.Same(t, target, a.Target)
			}
			assert.Equal(t, string(out), string(Encode(again)))
		})
	}
}
