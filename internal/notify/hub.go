package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/dark-chess/internal/obslog"
)

// Dispatcher answers command frames sent by a connected player. A false
// second result means no reply is written.
type Dispatcher interface {
	Dispatch(ctx context.Context, token string, in Frame) (Frame, bool)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, token string, in Frame) (Frame, bool)

func (f DispatchFunc) Dispatch(ctx context.Context, token string, in Frame) (Frame, bool) {
	return f(ctx, token, in)
}

type client struct {
	token string
	send  chan []byte
}

// Hub keeps WebSocket subscribers keyed by player token. One token may hold
// several connections; each gets its own copy of a notification.
type Hub struct {
	allowOrigins map[string]bool
	dispatcher   Dispatcher
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

type HubOption func(*Hub)

func WithDispatcher(d Dispatcher) HubOption { return func(h *Hub) { h.dispatcher = d } }

func WithPingInterval(d time.Duration) HubOption { return func(h *Hub) { h.pingInterval = d } }

func NewHub(allow []string, opts ...HubOption) *Hub {
	m := map[string]bool{}
	for _, a := range allow {
		if a = strings.TrimSpace(a); a != "" {
			m[a] = true
		}
	}
	h := &Hub{
		allowOrigins: m,
		pingInterval: 15 * time.Second,
		clients:      map[string]map[*client]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetDispatcher installs the command handler after construction.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()
}

// Connected reports how many live connections the token has.
func (h *Hub) Connected(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[token])
}

// Send queues msg for every connection of token. Offline players are
// skipped silently; they read the current state on their next load.
func (h *Hub) Send(_ context.Context, token string, msg Message) error {
	f, err := NewFrame("notify", "", msg)
	if err != nil {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var full bool
	for c := range h.clients[token] {
		select {
		case c.send <- b:
		default:
			full = true
		}
	}
	if full {
		return ErrSlowConsumer
	}
	return nil
}

// ServeWS upgrades the request and registers the connection under the
// "token" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		http.Error(w, ErrNoToken.Error(), http.StatusUnauthorized)
		return
	}
	origin := r.Header.Get("Origin")
	if origin != "" && len(h.allowOrigins) > 0 && !h.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		obslog.L().Warn("darkchess_ws_accept_error", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{token: token, send: make(chan []byte, 64)}
	h.add(c)
	obslog.L().Info("darkchess_ws_connect", zap.String("token", token))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, c)
	}()

	h.readLoop(ctx, conn, c)

	h.remove(c)
	cancel()
	<-done
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("darkchess_ws_disconnect", zap.String("token", token))
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var in Frame
		if err := json.Unmarshal(data, &in); err != nil || in.T == "" {
			continue
		}
		if in.T == "pong" {
			continue
		}
		h.mu.RLock()
		d := h.dispatcher
		h.mu.RUnlock()
		if d == nil {
			continue
		}
		out, ok := d.Dispatch(ctx, c.token, in)
		if !ok {
			continue
		}
		if out.ID == "" {
			out.ID = in.ID
		}
		b, err := json.Marshal(out)
		if err != nil {
			continue
		}
		select {
		case c.send <- b:
		default:
			obslog.L().Warn("darkchess_ws_reply_dropped", zap.String("token", c.token), zap.String("t", in.T))
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.token]
	if set == nil {
		set = map[*client]struct{}{}
		h.clients[c.token] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.token]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.token)
	}
}
