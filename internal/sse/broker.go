// Package sse implements a Server-Sent Events broker that streams run
// progress to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/sidestamp/internal/models"
)

// Event types.
const (
	EventRunStarted   = "run.started"
	EventOutcome      = "outcome"
	EventProgress     = "progress"
	EventRunCompleted = "run.completed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type outcomeReq struct {
	runID   string
	n       int
	total   int
	outcome models.Outcome
}

// publishReq carries either a plain event or an outcome. Both share one
// channel so a run's events reach clients in publish order.
type publishReq struct {
	event   Event
	outcome *outcomeReq
}

// OutcomeData is the payload of an outcome event.
type OutcomeData struct {
	RunID   string         `json:"run_id"`
	N       int            `json:"n"`
	Outcome models.Outcome `json:"outcome"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// RunData is the payload of run.started and run.completed events.
type RunData struct {
	RunID   string          `json:"run_id"`
	Root    string          `json:"root,omitempty"`
	Total   int             `json:"total"`
	DryRun  bool            `json:"dry_run,omitempty"`
	Summary *models.Summary `json:"summary,omitempty"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + progress throttle timestamp). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan publishReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given progress throttle
// interval.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 500 * time.Millisecond
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan chan []byte),
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

	clients := make(map[chan []byte]struct{})
	var lastProgress time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case pr := <-b.publishCh:
			if pr.outcome == nil {
				broadcast(pr.event)
				continue
			}
			req := pr.outcome
			broadcast(Event{Type: EventOutcome, Data: OutcomeData{RunID: req.runID, N: req.n, Outcome: req.outcome}})

			// The last item of a run always reports progress.
			now := time.Now()
			if now.Sub(lastProgress) >= b.progressMin || (req.total > 0 && req.n >= req.total) {
				lastProgress = now
				broadcast(Event{Type: EventProgress, Data: ProgressData{RunID: req.runID, Done: req.n, Total: req.total}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- publishReq{event: event}:
	case <-b.stopped:
	}
}

// PublishOutcome publishes one outcome event and a throttled progress event.
// total may be 0 when the run size is unknown.
func (b *Broker) PublishOutcome(runID string, n, total int, o models.Outcome) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- publishReq{outcome: &outcomeReq{runID: runID, n: n, total: total, outcome: o}}:
	case <-b.stopped:
	}
}

// RunListener returns a listener that streams one run to all clients. It
// publishes run.started immediately.
func (b *Broker) RunListener(runID, root string, total int, dryRun bool) *RunListener {
	b.Publish(Event{Type: EventRunStarted, Data: RunData{RunID: runID, Root: root, Total: total, DryRun: dryRun}})
	return &RunListener{b: b, runID: runID, total: total}
}

// RunListener forwards reconcile events to a Broker.
type RunListener struct {
	b     *Broker
	runID string
	total int
}

// OnOutcome publishes the outcome.
func (l *RunListener) OnOutcome(n int, o models.Outcome) {
	l.b.PublishOutcome(l.runID, n, l.total, o)
}

// OnComplete publishes run.completed.
func (l *RunListener) OnComplete(s models.Summary) {
	l.b.Publish(Event{Type: EventRunCompleted, Data: RunData{RunID: l.runID, Total: s.Total, Summary: &s}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
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
	flusher.Flush()

	ch := b.Subscribe()
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
