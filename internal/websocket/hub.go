package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"go.uber.org/zap"
)

// MessageTypeMatchFound 매칭 성사 알림 타입
const MessageTypeMatchFound = "match_found"

var (
	ErrClientNotConnected = fmt.Errorf("%w: player has no websocket connection", matchmaking.ErrRecipientOffline)
	ErrHubStopped         = errors.New("websocket hub stopped")
)

// Hub 플레이어별 WebSocket 연결 관리
type Hub struct {
	// playerID -> *Client, one connection per player
	clients map[string]*Client
	mu      sync.RWMutex

	outbound   chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	PlayerID string      `json:"-"`
	Type     string      `json:"type"`
	Payload  interface{} `json:"payload"`
}

// NewHub allowedOrigins empty allows any origin.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		outbound:   make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run Hub 실행. Returns when ctx is done, closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.outbound:
			h.deliver(message)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.logger.Info("WebSocket hub stopped")
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if old, exists := h.clients[client.playerID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("playerId", client.playerID))
	}

	h.clients[client.playerID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("playerId", client.playerID),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient ignores a client that was already replaced.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.playerID]; exists && current == client {
		delete(h.clients, client.playerID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("playerId", client.playerID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[message.PlayerID]
	if !exists {
		h.logger.Debug("Dropping message for disconnected player",
			zap.String("playerId", message.PlayerID),
			zap.String("type", message.Type))
		return
	}

	select {
	case client.send <- message:
	default:
		h.logger.Warn("Client send channel full",
			zap.String("playerId", message.PlayerID))
	}
}

// IsConnected 플레이어 연결 여부
func (h *Hub) IsConnected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

// ClientCount 연결 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendToPlayer 특정 플레이어에게 메시지 전송
func (h *Hub) SendToPlayer(ctx context.Context, playerID, msgType string, payload interface{}) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.outbound <- &Message{PlayerID: playerID, Type: msgType, Payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish is the single-instance matchmaking.Publisher: it reports players
// without a local connection so the pairing reaches the review queue.
func (h *Hub) Publish(ctx context.Context, playerID string, notification matchmaking.MatchNotification) error {
	if !h.IsConnected(playerID) {
		return ErrClientNotConnected
	}
	return h.SendToPlayer(ctx, playerID, MessageTypeMatchFound, notification)
}

// Deliver is the local leg of a cross-instance fan-out. Players connected to
// another instance are skipped.
func (h *Hub) Deliver(playerID string, notification matchmaking.MatchNotification) error {
	if !h.IsConnected(playerID) {
		return nil
	}
	return h.SendToPlayer(context.Background(), playerID, MessageTypeMatchFound, notification)
}
