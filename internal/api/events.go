package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mediadesk/internal/coordinator"
	"mediadesk/internal/logging"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// eventHub streams coordinator state changes to websocket clients.
type eventHub struct {
	coord   *coordinator.Coordinator
	metrics *Metrics
	logger  *slog.Logger
	upgrade websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func newEventHub(coord *coordinator.Coordinator, metrics *Metrics, origins []string, logger *slog.Logger) *eventHub {
	return &eventHub{
		coord:   coord,
		metrics: metrics,
		logger:  logger,
		upgrade: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r, r.Header.Get("Origin"))
			},
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// serve upgrades the request and writes one JSON JobState per message,
// starting with the current state of both engines. Clients that fall behind
// lose loading states first.
func (h *eventHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrade.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	logger := logging.WithContext(r.Context(), h.logger)
	logger.Debug("event stream opened", logging.String(logging.FieldEventType, "events_open"))
	h.metrics.Subscribers.Inc()
	defer h.metrics.Subscribers.Dec()

	states := make(chan coordinator.JobState, eventBuffer)
	unsubscribe := h.coord.Subscribe(func(s coordinator.JobState) { offer(states, s) })
	defer unsubscribe()

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, s := range h.coord.States() {
		if err := h.write(conn, s); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			logger.Debug("event stream closed", logging.String(logging.FieldEventType, "events_close"))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case s := <-states:
			if err := h.write(conn, s); err != nil {
				logger.Debug("event stream write failed", logging.Error(err))
				return
			}
		}
	}
}

// offer queues s without blocking. A full buffer drops loading states, while
// finished states displace the oldest queued entry.
func offer(states chan coordinator.JobState, s coordinator.JobState) {
	for {
		select {
		case states <- s:
			return
		default:
		}
		if s.Busy() {
			return
		}
		select {
		case <-states:
		default:
		}
	}
}

func (h *eventHub) write(conn *websocket.Conn, s coordinator.JobState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *eventHub) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *eventHub) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// close disconnects every client.
func (h *eventHub) close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
