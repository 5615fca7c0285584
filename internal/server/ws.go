package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ykarpov/brokersim/pkg/broker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs broker.Subscriptions
}

func (c *wsClient) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsClient) subscriptions() broker.Subscriptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs
}

func (c *wsClient) setSubscriptions(subs broker.Subscriptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = subs
}

// hub fans market-data snapshots out to websocket subscribers. A client
// sends a subscription message after connecting and may replace it at any
// time; after every successful step the hub resolves each client's
// subscriptions against the session and pushes the snapshot.
type hub struct {
	session *broker.Session
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub(session *broker.Session, logger *zap.Logger) *hub {
	return &hub{
		session: session,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *hub) add(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	_ = client.conn.Close()
}

func (h *hub) snapshot() []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client)
	}
	return out
}

// publish pushes the current market data to every subscriber. A client that
// cannot be served is dropped; the step itself never fails because of a
// slow or dead consumer.
func (h *hub) publish(ctx context.Context) {
	for _, client := range h.snapshot() {
		subs := client.subscriptions()
		if subs.Empty() {
			continue
		}
		snap, err := h.session.LatestFor(ctx, subs)
		if err != nil {
			h.logger.Warn("unable to resolve stream snapshot", zap.Error(err))
			h.remove(client)
			continue
		}
		if err := client.writeJSON(snap); err != nil {
			h.logger.Warn("dropping websocket client", zap.Error(err))
			h.remove(client)
		}
	}
}

func (h *Handler) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn}
	h.hub.add(client)

	go func() {
		defer h.hub.remove(client)
		for {
			var subs broker.Subscriptions
			if err := conn.ReadJSON(&subs); err != nil {
				return
			}
			client.setSubscriptions(subs)
		}
	}()
}
