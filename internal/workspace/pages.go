package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/storage"
)

// PageSummary is one entry of a page list.
type PageSummary struct {
	Heading   string   `json:"heading"`
	File      string   `json:"file,omitempty"`
	Draft     string   `json:"draft,omitempty"`
	Tags      []string `json:"tags"`
	Synthetic bool     `json:"synthetic,omitempty"`
	Pin       *int     `json:"pin,omitempty"`
}

// LinkView locates an anchor in the page text.
type LinkView struct {
	Pos    int    `json:"pos"`
	Target string `json:"target"`
}

// PageView is the full representation of a page.
type PageView struct {
	Heading string   `json:"heading"`
	File    string   `json:"file"`
	Draft   string   `json:"draft"`
	Tags    []string `json:"tags"`
	// Text holds the body with U+FFFC where an anchor sits.
	Text      string     `json:"text"`
	Links     []LinkView `json:"links"`
	Backlinks []string   `json:"backlinks"`
}

func (s *Service) summary(d *document.Document) PageSummary {
	p := PageSummary{
		Heading:   d.Heading(),
		Tags:      d.Tags(),
		Synthetic: d.Synthetic(),
		Pin:       d.Pin,
	}
	if !d.Synthetic() {
		p.File = s.fileOf(d)
		p.Draft = d.Draft()
	}
	return p
}

func (s *Service) view(d *document.Document) *PageView {
	v := &PageView{
		Heading:   d.Heading(),
		File:      s.fileOf(d),
		Draft:     d.Draft(),
		Tags:      d.Tags(),
		Text:      d.Body.Text(),
		Links:     []LinkView{},
		Backlinks: []string{},
	}
	for _, a := range d.Anchors() {
		v.Links = append(v.Links, LinkView{Pos: a.Pos, Target: a.Target.Heading()})
	}
	for _, b := range s.reg.Backlinks(d) {
		v.Backlinks = append(v.Backlinks, b.Heading())
	}
	return v
}

// Load reads every page file of the workspace. Headers are registered
// before any body is decoded, so links resolve to loaded pages instead of
// creating empty ones.
func (s *Service) Load(ctx context.Context) error {
	return s.Do(ctx, s.load)
}

func (s *Service) load() error {
	files, err := s.store.List()
	if err != nil {
		return fmt.Errorf("workspace: load: %w", err)
	}

	s.loading = true
	defer func() { s.loading = false }()

	type pending struct {
		doc  *document.Document
		body string
	}
	var bodies []pending
	seen := make(map[string]string, len(files))
	for _, f := range files {
		data, err := s.store.Read(f.Path)
		if err != nil {
			s.logger.Warn("workspace: read failed", slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		fm, _, err := markdown.SplitFrontMatter(data)
		if err != nil {
			s.logger.Warn("workspace: skipped file", slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		if prev, dup := seen[fm.Title]; dup {
			s.logger.Warn("workspace: duplicate title",
				slog.String("title", fm.Title),
				slog.String("file", f.Path),
				slog.String("kept", prev))
			continue
		}
		seen[fm.Title] = f.Path
		doc, body, err := s.dec.DecodeHeader(data)
		if err != nil {
			return fmt.Errorf("workspace: load %s: %w", f.Path, err)
		}
		s.files[doc] = f.Path
		s.written[f.Path] = f.Checksum
		bodies = append(bodies, pending{doc: doc, body: body})
	}

	for _, p := range bodies {
		s.dec.DecodeBody(p.doc, p.body)
	}

	if s.recoverOnLoad {
		for _, p := range bodies {
			s.rec.Recover(p.doc)
		}
	}

	s.logger.Info("workspace: loaded",
		slog.Int("files", len(bodies)),
		slog.Int("pages", s.reg.Len()))
	return nil
}

// Page returns the page registered under heading.
func (s *Service) Page(ctx context.Context, heading string) (*PageView, error) {
	var v *PageView
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		v = s.view(d)
		return nil
	})
	return v, err
}

// Pages lists the pages carrying tag in tag list order, placeholders
// included. An empty tag lists every page by heading.
func (s *Service) Pages(ctx context.Context, tag string) ([]PageSummary, error) {
	var out []PageSummary
	err := s.Do(ctx, func() error {
		docs := s.reg.Documents()
		if tag != "" {
			docs = s.tags.Pages(tag)
		}
		out = make([]PageSummary, 0, len(docs))
		for _, d := range docs {
			out = append(out, s.summary(d))
		}
		return nil
	})
	return out, err
}

// Tags returns every tag in use.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	var out []string
	err := s.Do(ctx, func() error {
		out = s.tags.Tags()
		return nil
	})
	return out, err
}

// TagsNotOn returns the known tags the page does not carry.
func (s *Service) TagsNotOn(ctx context.Context, heading string) ([]string, error) {
	var out []string
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		out = s.tags.TagsNotOn(d)
		return nil
	})
	return out, err
}

// Create registers a new page and writes its file.
func (s *Service) Create(ctx context.Context, heading string, tags []string) (*PageView, error) {
	var v *PageView
	err := s.Do(ctx, func() error {
		if !document.ValidLinkName(heading) {
			return fmt.Errorf("workspace: create %q: %w", heading, apperr.ErrInvalidLinkName)
		}
		if _, ok := s.reg.Find(heading); ok {
			return fmt.Errorf("workspace: create %q: %w", heading, apperr.ErrAlreadyExists)
		}
		if file := markdown.Filename(heading); s.store.Exists(file) {
			return fmt.Errorf("workspace: create %q: file %s: %w", heading, file, apperr.ErrConflict)
		}
		d := s.reg.FindOrCreate(heading, document.WithTags(tags...))
		if _, err := s.save(d); err != nil {
			return err
		}
		v = s.view(d)
		return nil
	})
	return v, err
}

// CreateUntitled registers a page under the next free untitled heading.
func (s *Service) CreateUntitled(ctx context.Context) (*PageView, error) {
	var v *PageView
	err := s.Do(ctx, func() error {
		d := s.reg.CreateUntitled()
		if _, err := s.save(d); err != nil {
			return err
		}
		v = s.view(d)
		return nil
	})
	return v, err
}

// Rename gives a page a new heading. The page moves to the file named
// after the new heading and every page linking to it is rewritten.
func (s *Service) Rename(ctx context.Context, heading, newHeading string) (*PageView, error) {
	var v *PageView
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		if newHeading == heading {
			return s.reg.Rename(d, newHeading)
		}
		if !document.ValidLinkName(newHeading) {
			return fmt.Errorf("workspace: rename %q: %w", heading, apperr.ErrInvalidLinkName)
		}
		oldFile := s.fileOf(d)
		newFile := markdown.Filename(newHeading)
		if newFile != oldFile && s.store.Exists(newFile) {
			return fmt.Errorf("workspace: rename %q: file %s: %w", heading, newFile, apperr.ErrConflict)
		}
		if err := s.reg.Rename(d, newHeading); err != nil {
			return err
		}

		s.files[d] = newFile
		delete(s.written, oldFile)
		if _, err := s.save(d); err != nil {
			return err
		}
		if newFile != oldFile {
			if err := s.store.Delete(oldFile); err != nil {
				return fmt.Errorf("workspace: rename %q: %w", heading, err)
			}
			s.unindex(oldFile)
		}
		for _, b := range s.reg.Backlinks(d) {
			if _, err := s.save(b); err != nil {
				return err
			}
		}
		v = s.view(d)
		return nil
	})
	return v, err
}

// Tag adds tag to a page and saves it.
func (s *Service) Tag(ctx context.Context, heading, tag string) (*PageView, error) {
	var v *PageView
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return fmt.Errorf("workspace: tag %q: empty tag: %w", heading, apperr.ErrInvalidInput)
		}
		if !d.HasTag(tag) {
			s.tags.Add(d, tag)
			if _, err := s.save(d); err != nil {
				return err
			}
			s.sink.PageEvent(EventPageTagged, map[string]string{"heading": heading, "tag": tag})
		}
		v = s.view(d)
		return nil
	})
	return v, err
}

// Untag removes tag from a page and saves it. A page left without tags
// falls back to the default tag.
func (s *Service) Untag(ctx context.Context, heading, tag string) (*PageView, error) {
	var v *PageView
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		if !s.tags.Remove(d, tag) {
			return fmt.Errorf("workspace: untag %q: tag %q: %w", heading, tag, apperr.ErrNotFound)
		}
		if _, err := s.save(d); err != nil {
			return err
		}
		s.sink.PageEvent(EventPageUntagged, map[string]string{"heading": heading, "tag": tag})
		v = s.view(d)
		return nil
	})
	return v, err
}

// Type inserts text into a page body at pos, one character at a time, the
// way keystrokes arrive from an editor. A completed "[[Name]]" becomes an
// anchor on the loop turn that follows.
func (s *Service) Type(ctx context.Context, heading string, pos int, text string) error {
	return s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		if pos < 0 || pos > d.Body.Len() {
			return fmt.Errorf("workspace: type at %d in %q: %w", pos, heading, apperr.ErrInvalidInput)
		}
		for _, r := range text {
			d.Body.Insert(pos, string(r))
			pos++
		}
		return nil
	})
}

// Markdown returns the page file a page would be saved as.
func (s *Service) Markdown(ctx context.Context, heading string) (string, error) {
	var out string
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		out = string(s.enc.Encode(d))
		return nil
	})
	return out, err
}

// Save writes one page and reports whether its file changed.
func (s *Service) Save(ctx context.Context, heading string) (bool, error) {
	var saved bool
	err := s.Do(ctx, func() error {
		d, err := s.find(heading)
		if err != nil {
			return err
		}
		saved, err = s.save(d)
		return err
	})
	return saved, err
}

// SaveAll writes every page whose file is out of date and returns how many
// were written.
func (s *Service) SaveAll(ctx context.Context) (int, error) {
	var n int
	err := s.Do(ctx, func() error {
		var errs []error
		for _, d := range s.reg.Documents() {
			saved, err := s.save(d)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if saved {
				n++
			}
		}
		return errors.Join(errs...)
	})
	return n, err
}

// Recover runs style recovery over every page and saves the pages it
// changed. It returns the number of pages changed.
func (s *Service) Recover(ctx context.Context) (int, error) {
	var n int
	err := s.Do(ctx, func() error {
		for _, d := range s.reg.Documents() {
			if s.rec.Recover(d).Changed() {
				n++
			}
		}
		// Recovered links may have created target pages, so save them all.
		var errs []error
		for _, d := range s.reg.Documents() {
			if _, err := s.save(d); err != nil {
				errs = append(errs, err)
			}
		}
		s.logger.Info("workspace: recovered", slog.Int("pages", n))
		return errors.Join(errs...)
	})
	return n, err
}

// Reload re-reads a page file changed outside the service. Files matching
// the last write are ignored. It reports whether the page was reloaded.
func (s *Service) Reload(ctx context.Context, file string) (bool, error) {
	var reloaded bool
	err := s.Do(ctx, func() error {
		data, err := s.store.Read(file)
		if err != nil {
			return fmt.Errorf("workspace: reload %s: %w", file, err)
		}
		cs := storage.Checksum(data)
		if s.written[file] == cs {
			return nil
		}
		fm, _, err := markdown.SplitFrontMatter(data)
		if err != nil {
			return fmt.Errorf("workspace: reload %s: %w", file, err)
		}
		prev := s.pageAt(file)
		retitled := prev != nil && prev.Heading() != fm.Title
		if retitled {
			if _, taken := s.reg.Find(fm.Title); !taken && document.ValidLinkName(fm.Title) {
				if err := s.reg.Rename(prev, fm.Title); err != nil {
					return fmt.Errorf("workspace: reload %s: %w", file, err)
				}
			}
		}
		doc, body, err := s.dec.DecodeHeader(data)
		if err != nil {
			return fmt.Errorf("workspace: reload %s: %w", file, err)
		}
		if prev != nil && prev != doc {
			// The file now holds another page; prev keeps living in memory
			// but is no longer written anywhere.
			s.files[prev] = ""
		}
		s.dec.DecodeBody(doc, body)
		s.files[doc] = file
		s.written[file] = cs
		s.indexPage(doc, file, cs)
		if retitled {
			for _, b := range s.reg.Backlinks(doc) {
				if _, err := s.save(b); err != nil {
					return err
				}
			}
		}
		s.sink.PageEvent(EventPageReloaded, map[string]string{"heading": doc.Heading(), "file": file})
		reloaded = true
		return nil
	})
	return reloaded, err
}
