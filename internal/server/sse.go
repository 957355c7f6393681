package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseRingBufferSize is how many recent events are kept for
	// Last-Event-ID replay.
	sseRingBufferSize = 1000

	sseClientBuffer      = 64
	sseKeepaliveInterval = 15 * time.Second
)

type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// eventRing holds the most recent events in id order.
type eventRing struct {
	buf   []sseEvent
	start int
}

func (r *eventRing) push(evt sseEvent) {
	if len(r.buf) < sseRingBufferSize {
		r.buf = append(r.buf, evt)
		return
	}
	r.buf[r.start] = evt
	r.start = (r.start + 1) % sseRingBufferSize
}

// since returns copies of the events with ID > lastID, oldest first.
func (r *eventRing) since(lastID uint64) []*sseEvent {
	var out []*sseEvent
	for i := range len(r.buf) {
		evt := r.buf[(r.start+i)%len(r.buf)]
		if evt.ID > lastID {
			out = append(out, &evt)
		}
	}
	return out
}

// topicFilter is a list of NATS-style patterns. Empty matches everything.
type topicFilter []string

func parseTopicFilter(q string) topicFilter {
	var f topicFilter
	for t := range strings.SplitSeq(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f = append(f, t)
		}
	}
	return f
}

func (f topicFilter) match(topic string) bool {
	if len(f) == 0 {
		return true
	}
	for _, p := range f {
		if matchTopicPattern(p, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic. "*" matches exactly one
// token; a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		if p == ">" {
			return topic != ""
		}
		t, tRest, tMore := strings.Cut(topic, ".")
		if topic == "" || (p != "*" && p != t) {
			return false
		}
		if !pMore || !tMore {
			return pMore == tMore
		}
		pattern, topic = pRest, tRest
	}
}

type sseClient struct {
	filter topicFilter
	ch     chan *sseEvent
}

// Hub fans relayed telemetry out to SSE clients. It implements
// events.Publisher. Clients that fall behind lose events; reconnecting with
// Last-Event-ID replays what the ring still holds.
type Hub struct {
	mu      sync.RWMutex
	lastID  uint64
	ring    eventRing
	clients map[*sseClient]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*sseClient]struct{}),
		done:    make(chan struct{}),
	}
}

// Publish encodes event as JSON and broadcasts it on topic.
func (h *Hub) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	h.broadcast(topic, payload)
	return nil
}

// Close ends every open stream. Later publishes still fill the ring.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

func (h *Hub) broadcast(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := sseEvent{ID: h.lastID, Topic: topic, Data: payload}
	h.ring.push(evt)

	for c := range h.clients {
		if !c.filter.match(topic) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
		}
	}
}

func (h *Hub) subscribe(filter topicFilter) *sseClient {
	c := &sseClient{filter: filter, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// subscribeSince registers a client and returns the ring's events after
// lastID in one critical section, so every event reaches the client exactly
// once: through the replay if it was already broadcast, through c.ch if not.
func (h *Hub) subscribeSince(filter topicFilter, lastID uint64) (*sseClient, []*sseEvent) {
	c := &sseClient{filter: filter, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	var replay []*sseEvent
	for _, evt := range h.ring.since(lastID) {
		if filter.match(evt.Topic) {
			replay = append(replay, evt)
		}
	}
	return c, replay
}

func (h *Hub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleEventStream serves GET /v1/events/stream[?topics=a,b].
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var (
		replay bool
		lastID uint64
	)
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			replay, lastID = true, id
		} else {
			s.logger.Debug("ignoring malformed Last-Event-ID", "value", v)
		}
	}

	filter := parseTopicFilter(r.URL.Query().Get("topics"))
	var (
		c      *sseClient
		missed []*sseEvent
	)
	if replay {
		c, missed = s.hub.subscribeSince(filter, lastID)
	} else {
		c = s.hub.subscribe(filter)
	}
	defer s.hub.unsubscribe(c)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	for _, evt := range missed {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.hub.done:
			return
		case evt := <-c.ch:
			writeSSEEvent(w, evt)
		case <-keepalive.C:
			io.WriteString(w, ":keepalive\n\n")
		}
		flusher.Flush()
	}
}

func writeSSEEvent(w io.Writer, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
