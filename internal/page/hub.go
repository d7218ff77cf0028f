package page

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Time allowed to write a control frame to the observer
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the observer
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Caption regions rarely hold more than a handful of turns.
	maxMessageSize = 1 << 20

	// DefaultRetention is how long a disconnected tab's page is kept for
	// the tab to reconnect under the same page ID.
	DefaultRetention = 2 * time.Minute

	// closeReplaced tells an observer a newer connection took over its page
	// ID. The observer picks a fresh ID instead of reconnecting.
	closeReplaced = 4000
)

// Message is sent by the observer script in the meeting tab.
//
//	{"type":"hello","url":"https://meet.google.com/abc-defg-hij"}
//	{"type":"region","attrs":{"role":"region","aria-label":"Captions"},"children":[{"handle":"c7","text":"Alice\nHi"}]}
//	{"type":"region_gone","attrs":{...}}
//	{"type":"navigate","url":"..."}
//
// At is only set in recorded streams fed to the replay command; the hub
// ignores it.
type Message struct {
	Type     string            `json:"type"`
	URL      string            `json:"url,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []caption.Node    `json:"children,omitempty"`
	At       time.Time         `json:"at,omitzero"`
}

// PageInfo describes a tab for the /api/pages listing.
type PageInfo struct {
	ID        string              `json:"id"`
	URL       string              `json:"url"`
	Regions   []map[string]string `json:"regions"`
	LastSeen  time.Time           `json:"lastSeen"`
	Connected bool                `json:"connected"`
}

// entry is one page ID's page and its current observer connection. conn is
// nil while the tab is away; expiry then runs down the retention window.
type entry struct {
	page   *Page
	conn   *websocket.Conn
	expiry *time.Timer
}

// Hub accepts observer connections from meeting tabs and serves the
// daemon's HTTP surface. A tab that reconnects within the retention window
// gets its previous Page back, so a recorder observing one of its regions
// keeps receiving updates.
type Hub struct {
	mu        sync.Mutex
	pages     map[string]*entry
	retention time.Duration

	upgrader websocket.Upgrader
	router   *mux.Router
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRetention sets how long a disconnected page survives.
func WithRetention(d time.Duration) HubOption {
	return func(h *Hub) { h.retention = d }
}

// NewHub returns a hub with its routes registered.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		pages:     make(map[string]*entry),
		retention: DefaultRetention,
		upgrader: websocket.Upgrader{
			// Observers run inside the meeting origin, not ours.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws/{pageID}", h.handleWebSocket)
	router.HandleFunc("/api/pages", h.handleListPages).Methods("GET")
	router.HandleFunc("/observer.js", handleObserverScript).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())
	h.router = router

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the hub's router.
func (h *Hub) Handler() http.Handler {
	return h.router
}

// Serve listens on addr until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Page hub listening", "addr", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Current returns the most recently active connected meeting tab.
func (h *Hub) Current() (Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var best *Page
	for _, e := range h.pages {
		if e.conn == nil {
			continue
		}
		if best == nil || e.page.LastSeen().After(best.LastSeen()) {
			best = e.page
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Pages lists connected tabs.
func (h *Hub) Pages() []PageInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]PageInfo, 0, len(h.pages))
	for id, e := range h.pages {
		p := e.page
		out = append(out, PageInfo{
			ID:        id,
			URL:       p.URL(),
			Regions:   p.Regions(),
			LastSeen:  p.LastSeen(),
			Connected: e.conn != nil,
		})
	}
	return out
}

func (h *Hub) handleListPages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Pages()); err != nil {
		slog.Error("Failed to encode page list", "error", err)
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	pageID := mux.Vars(r)["pageID"]
	if _, err := uuid.Parse(pageID); err != nil {
		http.Error(w, "Invalid page ID", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	p, prev := h.attach(pageID, conn)
	if prev != nil {
		prev.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeReplaced, "replaced by a newer connection"),
			time.Now().Add(writeWait))
		prev.Close()
		slog.Info("Meeting page connection replaced", "pageID", pageID)
	}
	slog.Info("Meeting page connected", "pageID", pageID)

	done := make(chan struct{})
	go pingPump(conn, done)
	h.readPump(conn, pageID, p)
	close(done)
}

// attach binds conn to the page registered under id, creating the page on
// first sight. It returns the connection conn displaced, if any.
func (h *Hub) attach(id string, conn *websocket.Conn) (*Page, *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.pages[id]
	if !ok {
		e = &entry{page: NewPage("")}
		h.pages[id] = e
	}
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	prev := e.conn
	if prev == nil {
		metrics.PagesConnected.Inc()
	}
	e.conn = conn
	return e.page, prev
}

// detach marks id's page as away if conn is still its connection, and
// drops the page once the retention window passes without a reconnect.
func (h *Hub) detach(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.pages[id]
	if !ok || e.conn != conn {
		return
	}
	e.conn = nil
	metrics.PagesConnected.Dec()
	e.expiry = time.AfterFunc(h.retention, func() { h.expire(id, e) })
}

func (h *Hub) expire(id string, e *entry) {
	h.mu.Lock()
	if h.pages[id] != e || e.conn != nil {
		h.mu.Unlock()
		return
	}
	delete(h.pages, id)
	h.mu.Unlock()

	e.page.Close()
	slog.Info("Meeting page gone", "pageID", id)
}

func (h *Hub) readPump(conn *websocket.Conn, pageID string, p *Page) {
	defer func() {
		h.detach(pageID, conn)
		conn.Close()
		slog.Info("Meeting page disconnected", "pageID", pageID)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket read error", "error", err, "pageID", pageID)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Dropping malformed observer message", "error", err, "pageID", pageID)
			continue
		}
		Apply(p, msg)
	}
}

// Apply updates p with one observer message.
func Apply(p *Page, msg Message) {
	switch msg.Type {
	case "hello", "navigate":
		p.SetURL(msg.URL)
	case "region":
		p.UpdateRegion(msg.Attrs, msg.Children)
	case "region_gone":
		p.RemoveRegion(msg.Attrs)
	default:
		slog.Debug("Ignoring observer message", "type", msg.Type)
	}
}

func pingPump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
