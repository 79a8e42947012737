// Package sse streams workspace changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	clientBuffer = 64
	historySize  = 128
	keepAlive    = 15 * time.Second
	graphEvent   = "graph.updated"
)

type subscription struct {
	ch    chan []byte
	after uint64
}

type publishReq struct {
	event Event
	graph bool
}

// frame is an encoded event kept for replay.
type frame struct {
	id  uint64
	raw []byte
}

// hub is the state owned by the broker loop.
type hub struct {
	clients   map[chan []byte]struct{}
	history   []frame
	seq       uint64
	lastGraph time.Time
}

func (h *hub) emit(e Event) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return
	}
	h.seq++
	f := frame{
		id:  h.seq,
		raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, e.Type, payload)),
	}
	if len(h.history) == historySize {
		copy(h.history, h.history[1:])
		h.history = h.history[:historySize-1]
	}
	h.history = append(h.history, f)

	for ch := range h.clients {
		select {
		case ch <- f.raw:
		default:
			// Slow client; drop rather than block the loop.
		}
	}
}

// join registers a client and replays the events it missed.
func (h *hub) join(s subscription) {
	h.clients[s.ch] = struct{}{}
	if s.after == 0 {
		return
	}
	for _, f := range h.history {
		if f.id <= s.after {
			continue
		}
		select {
		case s.ch <- f.raw:
		default:
			return
		}
	}
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the clients, the replay history and the
// graph throttle timestamp. Public methods talk to it over channels.
type Broker struct {
	graphMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan publishReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that sends graph.updated at most once per
// graphThrottle.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan publishReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{})}

	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			h.join(s)

		case ch := <-b.unsubscribeCh:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case req := <-b.publishCh:
			h.emit(req.event)
			if !req.graph {
				continue
			}
			if now := time.Now(); now.Sub(h.lastGraph) >= b.graphMin {
				h.lastGraph = now
				h.emit(Event{Type: graphEvent, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(h.clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. Buffered events newer than lastID are queued
// on the returned channel first; lastID 0 skips the replay.
func (b *Broker) Subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

func (b *Broker) send(req publishReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- req:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.send(publishReq{event: event})
}

// PageEvent publishes a page change followed by a throttled graph.updated
// event. kind is sent as the SSE event name.
func (b *Broker) PageEvent(kind string, data map[string]string) {
	b.send(publishReq{event: Event{Type: kind, Data: data}, graph: true})
}

// FileEvent reports a change seen by the workspace watcher as
// "file.created", "file.updated" or "file.deleted".
func (b *Broker) FileEvent(kind, file string) {
	b.PageEvent("file."+kind, map[string]string{"file": file})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// browser sends Last-Event-ID and receives what it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
