package workspace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/storage"
	"github.com/starford/quire/internal/testutil"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) PageEvent(kind string, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+data["heading"]+data["target"]+data["to"])
}

func (r *recordingSink) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type env struct {
	store *storage.FS
	db    *index.DB
	sink  *recordingSink
	ws    *Service
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	_, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	sink := &recordingSink{}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	opts = append([]Option{WithLogger(logger), WithEventSink(sink)}, opts...)
	e := &env{store: store, db: db, sink: sink}
	e.ws = New(store, db, opts...)
	t.Cleanup(e.ws.Close)
	return e
}

func (e *env) load(t *testing.T) {
	t.Helper()
	if err := e.ws.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func (e *env) read(t *testing.T, file string) string {
	t.Helper()
	data, err := e.store.Read(file)
	if err != nil {
		t.Fatalf("Read %s: %v", file, err)
	}
	return string(data)
}

func TestLoadResolvesLinksToLoadedPages(t *testing.T) {
	e := newEnv(t)
	// home.md sorts before notes.md, so its link is decoded first.
	testutil.WritePage(t, e.store, "home.md", "Home", nil, "See "+markdown.Link("Notes")+".\n")
	testutil.WritePage(t, e.store, "notes.md", "Notes", []string{"work"}, "plain\n")
	e.load(t)
	ctx := context.Background()

	pages, err := e.ws.Pages(ctx, "")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %+v, want 2", pages)
	}

	home, err := e.ws.Page(ctx, "Home")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if home.Text != "See \uFFFC.\n" {
		t.Errorf("text = %q", home.Text)
	}
	if len(home.Links) != 1 || home.Links[0].Target != "Notes" || home.Links[0].Pos != 4 {
		t.Errorf("links = %+v", home.Links)
	}

	notes, _ := e.ws.Page(ctx, "Notes")
	if len(notes.Backlinks) != 1 || notes.Backlinks[0] != "Home" {
		t.Errorf("backlinks = %v", notes.Backlinks)
	}
	if notes.File != "notes.md" || len(notes.Tags) != 1 || notes.Tags[0] != "work" {
		t.Errorf("notes = %+v", notes)
	}
	if n := e.sink.count(); n != 0 {
		t.Errorf("load emitted %d events", n)
	}
}

func TestLoadSkipsNonPagesAndDuplicates(t *testing.T) {
	e := newEnv(t)
	_ = e.store.Write("junk.md", []byte("no front matter"))
	testutil.WritePage(t, e.store, "a.md", "Same", []string{"first"}, "")
	testutil.WritePage(t, e.store, "b.md", "Same", []string{"second"}, "")
	e.load(t)

	p, err := e.ws.Page(context.Background(), "Same")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if p.File != "a.md" || len(p.Tags) != 1 || p.Tags[0] != "first" {
		t.Errorf("kept = %+v, want a.md tagged first", p)
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.ws.Create(ctx, "Crème Brûlée", []string{"food"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.File != "creme_brulee.md" {
		t.Errorf("file = %q", p.File)
	}
	if !strings.Contains(e.read(t, "creme_brulee.md"), `title: "Crème Brûlée"`) {
		t.Error("page file missing title")
	}
	if cs, _ := e.db.GetChecksum("creme_brulee.md"); cs == "" {
		t.Error("created page not indexed")
	}
	if !e.sink.has(EventPageCreated + ":Crème Brûlée") {
		t.Errorf("events = %v", e.sink.events)
	}

	if _, err := e.ws.Create(ctx, "Crème Brûlée", nil); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if _, err := e.ws.Create(ctx, "", nil); !errors.Is(err, apperr.ErrInvalidLinkName) {
		t.Errorf("empty heading err = %v", err)
	}
	_ = e.store.Write("taken.md", []byte("x"))
	if _, err := e.ws.Create(ctx, "Taken", nil); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("taken file err = %v", err)
	}
}

func TestCreateUntitled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.ws.CreateUntitled(ctx)
	if err != nil {
		t.Fatalf("CreateUntitled: %v", err)
	}
	b, _ := e.ws.CreateUntitled(ctx)
	if a.Heading != document.UntitledHeading || b.Heading != document.UntitledHeading+" 2" {
		t.Errorf("headings = %q, %q", a.Heading, b.Heading)
	}
	if len(a.Tags) != 1 || a.Tags[0] != document.DefaultTag {
		t.Errorf("tags = %v", a.Tags)
	}
}

func TestTypedLinkBecomesAnchor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.ws.Create(ctx, "Home", nil); err != nil {
		t.Fatal(err)
	}

	if err := e.ws.Type(ctx, "Home", 0, "see [[Target]]"); err != nil {
		t.Fatalf("Type: %v", err)
	}
	home, _ := e.ws.Page(ctx, "Home")
	if home.Text != "see \uFFFC" {
		t.Errorf("text = %q", home.Text)
	}
	if len(home.Links) != 1 || home.Links[0].Target != "Target" {
		t.Errorf("links = %+v", home.Links)
	}
	if !e.sink.has(EventPageCreated+":Target") || !e.sink.has(EventAnchorCreated+":Target") {
		t.Errorf("events = %v", e.sink.events)
	}

	n, err := e.ws.SaveAll(ctx)
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if n != 2 {
		t.Errorf("saved = %d, want 2", n)
	}
	if !strings.Contains(e.read(t, "home.md"), "see "+markdown.Link("Target")) {
		t.Errorf("home.md = %q", e.read(t, "home.md"))
	}
	if bl, _ := e.db.Backlinks("Target"); len(bl) != 1 || bl[0] != "Home" {
		t.Errorf("index backlinks = %v", bl)
	}
}

func TestTypeErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.ws.Create(ctx, "Home", nil)

	if err := e.ws.Type(ctx, "Home", 5, "x"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("out of range err = %v", err)
	}
	if err := e.ws.Type(ctx, "Missing", 0, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing page err = %v", err)
	}
}

func TestRenameRewritesBacklinks(t *testing.T) {
	e := newEnv(t)
	testutil.WritePage(t, e.store, "home.md", "Home", nil, "See "+markdown.Link("Notes")+".\n")
	testutil.WritePage(t, e.store, "notes.md", "Notes", nil, "plain\n")
	e.load(t)
	ctx := context.Background()

	p, err := e.ws.Rename(ctx, "Notes", "Journal")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if p.File != "journal.md" {
		t.Errorf("file = %q", p.File)
	}
	if e.store.Exists("notes.md") {
		t.Error("old file should be removed")
	}
	if !strings.Contains(e.read(t, "journal.md"), `title: "Journal"`) {
		t.Error("new file missing title")
	}
	if !strings.Contains(e.read(t, "home.md"), markdown.Link("Journal")) {
		t.Errorf("home.md not rewritten: %q", e.read(t, "home.md"))
	}
	if cs, _ := e.db.GetChecksum("notes.md"); cs != "" {
		t.Error("old file still indexed")
	}
	if !e.sink.has(EventPageRenamed + ":Journal") {
		t.Errorf("events = %v", e.sink.events)
	}
}

func TestRenameErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.ws.Create(ctx, "One", nil)
	_, _ = e.ws.Create(ctx, "Two", nil)

	if _, err := e.ws.Rename(ctx, "Missing", "X"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	if _, err := e.ws.Rename(ctx, "One", "Two"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("taken err = %v", err)
	}
	if _, err := e.ws.Rename(ctx, "One", "a\tb"); !errors.Is(err, apperr.ErrInvalidLinkName) {
		t.Errorf("invalid err = %v", err)
	}
	if _, err := e.ws.Rename(ctx, "One", "One"); err != nil {
		t.Errorf("same heading err = %v", err)
	}
}

func TestTagUntag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.ws.Create(ctx, "Page", []string{"a"})
	_, _ = e.ws.Create(ctx, "Other", []string{"b"})

	p, err := e.ws.Tag(ctx, "Page", " work ")
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if len(p.Tags) != 2 || p.Tags[1] != "work" {
		t.Errorf("tags = %v", p.Tags)
	}
	if !strings.Contains(e.read(t, "page.md"), "- work") {
		t.Error("tag not saved")
	}
	if !e.sink.has(EventPageTagged + ":Page") {
		t.Errorf("events = %v", e.sink.events)
	}

	notOn, _ := e.ws.TagsNotOn(ctx, "Page")
	if len(notOn) != 1 || notOn[0] != "b" {
		t.Errorf("tags not on = %v", notOn)
	}

	if _, err := e.ws.Tag(ctx, "Page", "  "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty tag err = %v", err)
	}
	if _, err := e.ws.Untag(ctx, "Page", "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing tag err = %v", err)
	}

	_, _ = e.ws.Untag(ctx, "Page", "a")
	p, err = e.ws.Untag(ctx, "Page", "work")
	if err != nil {
		t.Fatalf("Untag: %v", err)
	}
	if len(p.Tags) != 1 || p.Tags[0] != document.DefaultTag {
		t.Errorf("tags after untag = %v", p.Tags)
	}
	tags, _ := e.ws.Tags(ctx)
	if strings.Join(tags, ",") != "Not tagged,b" {
		t.Errorf("tags = %v", tags)
	}
	if pages, _ := e.db.PagesByTag(document.DefaultTag); len(pages) != 1 || pages[0].Heading != "Page" {
		t.Errorf("index by tag = %+v", pages)
	}
}

func TestPagesWithPlaceholders(t *testing.T) {
	e := newEnv(t, WithPlaceholders(true))
	ctx := context.Background()
	_, _ = e.ws.Create(ctx, "Alpha", []string{"x"})

	pages, err := e.ws.Pages(ctx, "x")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages = %+v", pages)
	}
	if pages[0].Heading != document.LinkToHeading || !pages[0].Synthetic || pages[0].File != "" {
		t.Errorf("first = %+v", pages[0])
	}
	if pages[1].Heading != document.NewPageHeading {
		t.Errorf("second = %+v", pages[1])
	}
	if pages[2].Heading != "Alpha" || pages[2].File != "alpha.md" {
		t.Errorf("third = %+v", pages[2])
	}
}

func TestSaveAllSkipsUnchanged(t *testing.T) {
	e := newEnv(t)
	body := "# Title\nsome **bold** text\n"
	testutil.WritePage(t, e.store, "page.md", "Page", []string{"t"}, body)
	e.load(t)

	n, err := e.ws.SaveAll(context.Background())
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if n != 0 {
		t.Errorf("saved = %d, want 0", n)
	}
	if saved, _ := e.ws.Save(context.Background(), "Page"); saved {
		t.Error("Save wrote an unchanged page")
	}
}

func TestMarkdown(t *testing.T) {
	e := newEnv(t)
	src := string(testutil.Page("Page", []string{"t"}, "# Title\nbody\n"))
	_ = e.store.Write("page.md", []byte(src))
	e.load(t)

	got, err := e.ws.Markdown(context.Background(), "Page")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if got != src {
		t.Errorf("markdown = %q, want %q", got, src)
	}
}

func TestReload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.ws.Create(ctx, "Page", nil)

	if ok, err := e.ws.Reload(ctx, "page.md"); err != nil || ok {
		t.Errorf("own write reloaded: %v %v", ok, err)
	}

	testutil.WritePage(t, e.store, "page.md", "Page", []string{"edited"}, "changed outside\n")
	ok, err := e.ws.Reload(ctx, "page.md")
	if err != nil || !ok {
		t.Fatalf("Reload = %v, %v", ok, err)
	}
	p, _ := e.ws.Page(ctx, "Page")
	if p.Text != "changed outside\n" || len(p.Tags) != 1 || p.Tags[0] != "edited" {
		t.Errorf("page = %+v", p)
	}
}

func TestReloadRetitledFile(t *testing.T) {
	e := newEnv(t)
	testutil.WritePage(t, e.store, "home.md", "Home", nil, "See "+markdown.Link("Page")+".\n")
	testutil.WritePage(t, e.store, "page.md", "Page", nil, "old\n")
	e.load(t)
	ctx := context.Background()

	testutil.WritePage(t, e.store, "page.md", "Alpha", nil, "edited outside\n")
	if ok, err := e.ws.Reload(ctx, "page.md"); err != nil || !ok {
		t.Fatalf("Reload = %v, %v", ok, err)
	}
	if _, err := e.ws.Page(ctx, "Page"); err == nil {
		t.Error("old heading still registered")
	}
	p, err := e.ws.Page(ctx, "Alpha")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if p.File != "page.md" || p.Text != "edited outside\n" {
		t.Errorf("page = %+v", p)
	}
	if !strings.Contains(e.read(t, "home.md"), markdown.Link("Alpha")) {
		t.Errorf("home.md = %q", e.read(t, "home.md"))
	}

	if n, err := e.ws.SaveAll(ctx); err != nil || n != 0 {
		t.Errorf("SaveAll = %d, %v", n, err)
	}
	if got := e.read(t, "page.md"); !strings.Contains(got, "edited outside") || !strings.Contains(got, `title: "Alpha"`) {
		t.Errorf("page.md = %q", got)
	}
}

func TestReloadFileTakenOverByExistingPage(t *testing.T) {
	e := newEnv(t)
	testutil.WritePage(t, e.store, "page.md", "Page", nil, "old\n")
	testutil.WritePage(t, e.store, "other.md", "Other", nil, "other\n")
	e.load(t)
	ctx := context.Background()

	testutil.WritePage(t, e.store, "page.md", "Other", nil, "moved here\n")
	if ok, err := e.ws.Reload(ctx, "page.md"); err != nil || !ok {
		t.Fatalf("Reload = %v, %v", ok, err)
	}
	if _, err := e.ws.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if got := e.read(t, "page.md"); !strings.Contains(got, "moved here") {
		t.Errorf("page.md overwritten: %q", got)
	}
}

func TestRecover(t *testing.T) {
	e := newEnv(t)
	testutil.WritePage(t, e.store, "home.md", "Home", nil, "see [[Other]]\n")
	e.load(t)
	ctx := context.Background()

	n, err := e.ws.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Errorf("recovered = %d, want 1", n)
	}
	if !strings.Contains(e.read(t, "home.md"), "see "+markdown.Link("Other")) {
		t.Errorf("home.md = %q", e.read(t, "home.md"))
	}
	if !e.store.Exists("other.md") {
		t.Error("link target not saved")
	}
}

func TestRecoverOnLoad(t *testing.T) {
	e := newEnv(t, WithRecoverOnLoad(true))
	testutil.WritePage(t, e.store, "home.md", "Home", nil, "see [[Other]]\n")
	e.load(t)

	p, _ := e.ws.Page(context.Background(), "Home")
	if len(p.Links) != 1 || p.Links[0].Target != "Other" {
		t.Errorf("links = %+v", p.Links)
	}
}

func TestClosed(t *testing.T) {
	e := newEnv(t)
	e.ws.Close()
	if _, err := e.ws.Tags(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestContextCancelled(t *testing.T) {
	e := newEnv(t)
	started, block := make(chan struct{}), make(chan struct{})
	go func() {
		_ = e.ws.Do(context.Background(), func() error {
			close(started)
			<-block
			return nil
		})
	}()
	defer close(block)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.ws.Tags(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
