// Package workspace serves the pages of one workspace directory.
//
// All page state lives on a single control goroutine. Public methods hand a
// closure to that goroutine and wait for it; after every operation the
// deferred queue is drained once, which is one turn of the host loop.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/document"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/linktyping"
	"github.com/starford/quire/internal/loop"
	"github.com/starford/quire/internal/markdown"
	"github.com/starford/quire/internal/recovery"
	"github.com/starford/quire/internal/storage"
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("workspace: closed")

// Event kinds forwarded to the EventSink.
const (
	EventPageCreated   = "page.created"
	EventAnchorCreated = "anchor.created"
	EventPageRenamed   = "page.renamed"
	EventPageTagged    = "page.tagged"
	EventPageUntagged  = "page.untagged"
	EventPageReloaded  = "page.reloaded"
)

// EventSink receives page events. *sse.Broker implements it.
type EventSink interface {
	PageEvent(kind string, data map[string]string)
}

type nopSink struct{}

func (nopSink) PageEvent(string, map[string]string) {}

type request struct {
	fn   func() error
	done chan error
}

// Service coordinates the page model with storage and the index.
type Service struct {
	store  storage.Provider
	db     index.PageIndex
	sink   EventSink
	logger *slog.Logger

	placeholders  bool
	recoverOnLoad bool

	// Owned by the control goroutine.
	reg       *document.Registry
	tags      *document.TagIndex
	queue     *loop.Queue
	dec       *markdown.Decoder
	enc       *markdown.Encoder
	rec       *recovery.Recoverer
	detectors map[*document.Document]*linktyping.Detector
	files     map[*document.Document]string
	written   map[string]string // file -> checksum of the last write
	loading   bool

	requests chan request
	stopCh   chan struct{}
	stopped  chan struct{}
	closed   atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithEventSink forwards page events to sink.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithPlaceholders heads every tag list with the link and new page entries.
func WithPlaceholders(on bool) Option {
	return func(s *Service) {
		s.placeholders = on
	}
}

// WithRecoverOnLoad runs style recovery over every page after Load.
func WithRecoverOnLoad(on bool) Option {
	return func(s *Service) {
		s.recoverOnLoad = on
	}
}

// New creates a Service over store. db may be nil, in which case the index
// is not kept up to date.
func New(store storage.Provider, db index.PageIndex, opts ...Option) *Service {
	s := &Service{
		store:     store,
		db:        db,
		sink:      nopSink{},
		logger:    slog.Default(),
		queue:     &loop.Queue{},
		detectors: make(map[*document.Document]*linktyping.Detector),
		files:     make(map[*document.Document]string),
		written:   make(map[string]string),
		requests:  make(chan request),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.reg = document.NewRegistry(document.WithLogger(s.logger))
	var tagOpts []document.IndexOption
	if s.placeholders {
		tagOpts = append(tagOpts, document.WithPlaceholders())
	}
	s.tags = document.NewTagIndex(s.reg, tagOpts...)
	s.dec = markdown.NewDecoder(s.reg, markdown.WithTagIndex(s.tags), markdown.WithDecoderLogger(s.logger))
	s.enc = markdown.NewEncoder(s.logger)
	s.rec = recovery.New(s.reg, recovery.WithLogger(s.logger))

	s.reg.OnDocumentCreated(s.created)
	s.reg.OnAnchorCreated(s.anchorCreated)
	s.reg.OnRenamed(s.renamed)

	go s.run()
	return s
}

func (s *Service) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stopCh:
			return
		case req := <-s.requests:
			err := req.fn()
			s.queue.Drain()
			req.done <- err
		}
	}
}

// Do runs fn on the control goroutine and waits for it. The deferred queue
// is drained once after fn returns.
func (s *Service) Do(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrClosed
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrClosed
	}
}

// Close stops the control goroutine. Unsaved edits are lost.
func (s *Service) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}

func (s *Service) created(d *document.Document) {
	s.detectors[d] = linktyping.Attach(s.reg, d, s.queue, linktyping.WithLogger(s.logger))
	if !s.loading {
		s.sink.PageEvent(EventPageCreated, map[string]string{"heading": d.Heading()})
	}
}

func (s *Service) anchorCreated(ev document.AnchorEvent) {
	if s.loading {
		return
	}
	s.sink.PageEvent(EventAnchorCreated, map[string]string{
		"page":   ev.Owner.Heading(),
		"target": ev.Reference.Heading,
		"pos":    strconv.Itoa(ev.Pos),
	})
}

func (s *Service) renamed(ev document.RenameEvent) {
	s.sink.PageEvent(EventPageRenamed, map[string]string{
		"from": ev.Old,
		"to":   ev.Document.Heading(),
	})
}

func (s *Service) find(heading string) (*document.Document, error) {
	d, ok := s.reg.Find(heading)
	if !ok {
		return nil, fmt.Errorf("workspace: page %q: %w", heading, apperr.ErrNotFound)
	}
	return d, nil
}

func (s *Service) fileOf(d *document.Document) string {
	if f, ok := s.files[d]; ok {
		return f
	}
	f := markdown.Filename(d.Heading())
	s.files[d] = f
	return f
}

// pageAt returns the page last read from or written to file.
func (s *Service) pageAt(file string) *document.Document {
	for d, f := range s.files {
		if f == file {
			return d
		}
	}
	return nil
}

// save writes d when its encoding differs from the last write and
// reports whether it did.
func (s *Service) save(d *document.Document) (bool, error) {
	if d.Synthetic() {
		return false, nil
	}
	file := s.fileOf(d)
	if file == "" {
		return false, nil
	}
	data := s.enc.Encode(d)
	cs := storage.Checksum(data)
	if s.written[file] == cs {
		return false, nil
	}
	if err := s.store.Write(file, data); err != nil {
		return false, fmt.Errorf("workspace: save %q: %w", d.Heading(), err)
	}
	s.written[file] = cs
	s.indexPage(d, file, cs)
	s.logger.Debug("workspace: saved", slog.String("page", d.Heading()), slog.String("file", file))
	return true, nil
}

func (s *Service) indexPage(d *document.Document, file, cs string) {
	if s.db == nil {
		return
	}
	row := index.PageRow{
		File:      file,
		Heading:   d.Heading(),
		Draft:     d.Draft(),
		Checksum:  cs,
		Tags:      d.Tags(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.UpsertPage(row, d.Body.PlainText(), markdown.Links(d)); err != nil {
		s.logger.Warn("workspace: index update failed",
			slog.String("file", file),
			slog.String("error", err.Error()))
	}
}

func (s *Service) unindex(file string) {
	if s.db == nil {
		return
	}
	if err := s.db.DeletePage(file); err != nil {
		s.logger.Warn("workspace: index delete failed",
			slog.String("file", file),
			slog.String("error", err.Error()))
	}
}
