package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FocuswithJustin/versereader/core/bible"
	"github.com/FocuswithJustin/versereader/core/errors"
	"github.com/FocuswithJustin/versereader/internal/logging"
	"github.com/FocuswithJustin/versereader/internal/reader"
)

// WebSocket limits.
const (
	MaxMessageSize = 4096 // bytes per client frame
	MaxMessageRate = 10   // client frames per second

	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

// ClientMessage is a reader command sent over /ws/reader.
type ClientMessage struct {
	Action   string `json:"action"` // select, next, previous, version, font, search
	Version  string `json:"version,omitempty"`
	Book     string `json:"book,omitempty"`
	Chapter  int    `json:"chapter,omitempty"`
	FontSize int    `json:"font_size,omitempty"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ServerMessage is pushed to reader sessions.
type ServerMessage struct {
	Type     string               `json:"type"` // state, search, error
	Settings *reader.Settings     `json:"settings,omitempty"`
	Books    []bible.Book         `json:"books,omitempty"`
	Chapter  *bible.Chapter       `json:"chapter,omitempty"`
	Loading  bool                 `json:"loading,omitempty"`
	Results  []bible.SearchResult `json:"results,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func stateMessage(st reader.State) ServerMessage {
	msg := ServerMessage{
		Type:     "state",
		Settings: &st.Settings,
		Chapter:  st.Chapter,
		Loading:  st.Loading,
	}
	if st.Data != nil {
		msg.Books = st.Data.Books
	}
	if st.LastError != nil {
		msg.Error = st.LastError.Error()
	}
	return msg
}

// Hub tracks live reader sessions.
type Hub struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
	gauge    prometheus.Gauge
}

// NewHub creates a hub reporting its size to gauge (which may be nil).
func NewHub(gauge prometheus.Gauge) *Hub {
	return &Hub{
		sessions: make(map[*session]struct{}),
		gauge:    gauge,
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.report(n)
	logging.WebSocketEvent("client_connected", n, "user", s.user)
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		h.report(n)
		logging.WebSocketEvent("client_disconnected", n, "user", s.user)
	}
}

func (h *Hub) report(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll sends a going-away close frame to every session and closes it.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()

	for _, s := range all {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		s.close()
	}
}

// messageRateBucket implements a token bucket for message rate limiting.
type messageRateBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
	now        func() time.Time
}

func newMessageRateBucket(perSecond int, now func() time.Time) *messageRateBucket {
	return &messageRateBucket{
		tokens:     float64(perSecond) * 2, // Allow burst of 2x
		capacity:   float64(perSecond) * 2,
		refillRate: float64(perSecond),
		last:       now(),
		now:        now,
	}
}

// allow is only called from the session's read loop, so it needs no lock.
func (b *messageRateBucket) allow() bool {
	now := b.now()
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.refillRate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// originAllowed checks origin against the allowed list. An empty list
// allows every origin, matching the CORS middleware. Entries may be "*",
// an exact origin, or "*.example.com" for subdomains.
func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(origin, a[1:]) {
				return true
			}
		}
	}
	return false
}

// session is one /ws/reader connection driving its own controller.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	ctrl   *reader.Controller
	user   string
	logger *slog.Logger
	bucket *messageRateBucket

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	unsub  func()
}

func (s *Server) handleReaderSocket() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			ok := originAllowed(r.Header.Get("Origin"), s.cfg.AllowedOrigins)
			if !ok {
				logging.SecurityEvent("websocket_origin_rejected", "api", "origin", r.Header.Get("Origin"))
			}
			return ok
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		initial, user, err := s.initialSettings(r)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already written an error response.
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(MaxMessageSize)

		ctx, cancel := context.WithCancel(context.Background())
		ctx = logging.WithRequestID(ctx, logging.GetRequestID(r.Context()))
		logger := s.logger.With("user", user, "request_id", logging.GetRequestID(r.Context()))
		sess := &session{
			srv:    s,
			conn:   conn,
			ctrl:   reader.New(s.lib, initial, logger),
			user:   user,
			logger: logger,
			bucket: newMessageRateBucket(MaxMessageRate, time.Now),
			ctx:    ctx,
			cancel: cancel,
			send:   make(chan []byte, sendBuffer),
			done:   make(chan struct{}),
		}
		sess.unsub = sess.ctrl.Subscribe(func(st reader.State) {
			sess.push(stateMessage(st))
		})
		s.hub.register(sess)

		go sess.writePump()
		go sess.readPump()
	}
}

// initialSettings opens the caller's saved position when known, then
// applies a ?version= override.
func (s *Server) initialSettings(r *http.Request) (reader.Settings, string, error) {
	settings := reader.DefaultSettings(s.cfg.defaultVersion())

	var user string
	if r.Header.Get(UserHeader) != "" {
		id, err := userID(r)
		if err != nil {
			return settings, "", err
		}
		user = id
		if s.store != nil {
			saved, err := s.store.LoadPosition(r.Context(), user)
			switch {
			case err == nil:
				settings = saved
			case !errors.Is(err, errors.ErrNotFound):
				s.logger.Warn("loading position failed", "user", user, "error", err)
			}
		}
	}

	if v := r.URL.Query().Get("version"); v != "" {
		settings.Version = v
	}
	if _, err := s.versionValue(settings.Version); err != nil {
		return settings, "", err
	}
	return settings, user, nil
}

func (c *session) close() {
	c.once.Do(func() {
		close(c.done)
		c.unsub()
		c.cancel()
		c.conn.Close()
		c.srv.hub.unregister(c)
	})
}

// push queues msg without blocking. Messages are dropped when the client
// falls behind.
func (c *session) push(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("websocket send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *session) pushError(err error) {
	c.push(ServerMessage{Type: "error", Error: err.Error()})
}

func (c *session) readPump() {
	defer c.close()

	if err := c.ctrl.Load(c.ctx); err != nil {
		c.pushError(err)
	}

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		if !c.bucket.allow() {
			logging.SecurityEvent("websocket_rate_limited", "api", "user", c.user)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.pushError(errors.NewValidation("message", "malformed JSON"))
			continue
		}
		if err := c.dispatch(msg); err != nil {
			c.pushError(err)
			continue
		}
		c.savePosition()
	}
}

func (c *session) dispatch(msg ClientMessage) error {
	ctx := c.ctx
	switch msg.Action {
	case "select":
		return c.ctrl.Select(ctx, strings.ToLower(msg.Book), msg.Chapter)
	case "next":
		return c.ctrl.NextChapter(ctx)
	case "previous":
		return c.ctrl.PreviousChapter(ctx)
	case "version":
		if _, err := c.srv.versionValue(msg.Version); err != nil {
			return err
		}
		return c.ctrl.SetVersion(ctx, msg.Version)
	case "font":
		return c.ctrl.SetFontSize(msg.FontSize)
	case "search":
		limit := msg.Limit
		if limit <= 0 {
			limit = DefaultSearchLimit
		}
		results := c.ctrl.Search(ctx, msg.Query, min(limit, MaxSearchLimit))
		c.push(ServerMessage{Type: "search", Results: results})
		return nil
	default:
		return errors.NewValidation("action", fmt.Sprintf("unknown action %q", msg.Action))
	}
}

// savePosition persists the session's settings for identified users.
func (c *session) savePosition() {
	if c.user == "" || c.srv.store == nil {
		return
	}
	if err := c.srv.store.SavePosition(c.ctx, c.user, c.ctrl.Settings()); err != nil {
		c.logger.Warn("saving position failed", "error", err)
	}
}

func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
