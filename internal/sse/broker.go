// Package sse streams memo changes to browsers over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/memo/internal/models"
)

// Memo event kinds accepted by PublishMemo.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
	KindMissing = "missing"
	KindOrphan  = "orphan"
)

const (
	clientBuffer = 64
	// historySize fits in a fresh client buffer with room for live events.
	historySize = clientBuffer / 2
)

// MemoEvent is one change to the memo store. Record changes carry enough
// for a client to patch its list in place.
type MemoEvent struct {
	Kind         string     `json:"-"`
	Handle       string     `json:"handle,omitempty"`
	Title        string     `json:"title,omitempty"`
	DateModified *time.Time `json:"date_modified,omitempty"`
	Path         string     `json:"path,omitempty"`
}

// RecordEvent builds the event for a repository mutation.
func RecordEvent(kind string, rec models.Record) MemoEvent {
	ev := MemoEvent{Kind: kind, Handle: rec.Handle().String(), Title: rec.Title}
	if !rec.DateModified.IsZero() {
		mod := rec.DateModified
		ev.DateModified = &mod
	}
	return ev
}

// DriftEvent builds the event for a watcher report. Orphans have no handle
// and are identified by path.
func DriftEvent(kind string, id int64, path string) MemoEvent {
	if kind == KindOrphan {
		return MemoEvent{Kind: kind, Path: path}
	}
	return MemoEvent{Kind: kind, Handle: models.HandleFromID(id).String()}
}

func (ev MemoEvent) mutation() bool {
	switch ev.Kind {
	case KindCreated, KindUpdated, KindDeleted:
		return true
	}
	return false
}

func (ev MemoEvent) valid() bool {
	return ev.mutation() || ev.Kind == KindMissing || ev.Kind == KindOrphan
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	resume bool
	lastID uint64
}

// Broker fans memo events out to SSE clients.
//
// A single loop goroutine owns the clients, the event sequence, the replay
// history and the list.updated timer. Mutations within one listDelay window
// are folded into a single list.updated sent when the window closes, so the
// last change of a burst is always followed by a refresh.
type Broker struct {
	listDelay time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	eventCh       chan MemoEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker and starts its loop.
func NewBroker(listDelay time.Duration) *Broker {
	if listDelay <= 0 {
		listDelay = 2 * time.Second
	}

	b := &Broker{
		listDelay:     listDelay,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		eventCh:       make(chan MemoEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(id uint64, eventType string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	if id == 0 {
		return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload))
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, eventType, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64
	history := make([]frame, 0, historySize)

	pending := 0
	var listTimer *time.Timer
	var listC <-chan time.Time

	broadcast := func(eventType string, data any) {
		seq++
		f := frame{id: seq, raw: encode(seq, eventType, data)}
		if len(history) == historySize {
			copy(history, history[1:])
			history = history[:historySize-1]
		}
		history = append(history, f)

		for ch := range clients {
			select {
			case ch <- f.raw:
			default:
				// Slow client; it can catch up through Last-Event-ID.
			}
		}
	}

	attach := func(sub subscription) {
		if sub.resume {
			switch {
			case sub.lastID > seq,
				len(history) > 0 && sub.lastID+1 < history[0].id:
				// Too far behind or from an earlier process.
				sub.ch <- encode(0, "reset", map[string]uint64{"last_id": seq})
			default:
				for _, f := range history {
					if f.id > sub.lastID {
						sub.ch <- f.raw
					}
				}
			}
		}
		clients[sub.ch] = struct{}{}
	}

	for {
		select {
		case <-b.stopCh:
			if listTimer != nil {
				listTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			attach(sub)

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			broadcast("memo."+ev.Kind, ev)
			if !ev.mutation() {
				continue
			}
			pending++
			if listC == nil {
				listTimer = time.NewTimer(b.listDelay)
				listC = listTimer.C
			}

		case <-listC:
			broadcast("list.updated", map[string]int{"changes": pending})
			pending = 0
			listC = nil

		case resp := <-b.countReqCh:
			resp <- len(clients)
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

// Subscribe adds a client that receives events from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscription{})
}

// SubscribeFrom adds a client that first receives the retained events after
// lastID. When those are no longer retained it receives a single reset
// event instead and should refetch the list.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	return b.subscribe(subscription{resume: true, lastID: lastID})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	sub.ch = make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(sub.ch)
		return sub.ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(sub.ch)
	}
	return sub.ch
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

// PublishMemo broadcasts ev as memo.<kind>. Unknown kinds are dropped.
func (b *Broker) PublishMemo(ev MemoEvent) {
	if b.closed.Load() || !ev.valid() {
		return
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// EventSource sends Last-Event-ID and gets the events it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", 3*time.Second/time.Millisecond)
	flusher.Flush()

	var ch chan []byte
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeFrom(lastID)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
