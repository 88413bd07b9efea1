package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courtiq/drill-engine/internal/drill"
)

// Hub управляет WebSocket соединениями
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Канал для регистрации клиентов
	register chan *Client

	// Канал для отмены регистрации клиентов
	unregister chan *Client

	// Канал для исходящих сообщений
	broadcast chan envelope

	// Мютекс для безопасной работы с картой клиентов
	mu sync.RWMutex

	// Последние оценки для каждой сессии (session_id -> scores)
	lastScores map[string]drill.Scores
	scoresMu   sync.RWMutex
}

// envelope - сообщение с адресом: пустой sessionID означает рассылку всем
type envelope struct {
	sessionID string
	payload   []byte
}

// Client представляет WebSocket клиента
type Client struct {
	hub *Hub

	// WebSocket соединение
	conn *websocket.Conn

	// Буферизованный канал исходящих сообщений
	send chan []byte

	// ID сессии для фильтрации данных; пустой - клиент получает все
	sessionID string
}

// SessionUpdate - кадр обновления сессии для фронтенда
type SessionUpdate struct {
	SessionID string      `json:"session_id"`
	SentAt    int64       `json:"sent_at_ms"`
	Update    interface{} `json:"update"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене следует проверять домен
		return true
	},
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 64),
		lastScores: make(map[string]drill.Scores),
	}
}

// Run запускает Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client registered: %p, session: %s", client, client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client unregistered: %p", client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != "" && msg.sessionID != "" && client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// NotifySessionUpdate отправляет обновление сессии подписанным клиентам
func (h *Hub) NotifySessionUpdate(sessionID string, update interface{}) {
	// Оценки из обновления запоминаются: новый подписчик получает
	// актуальный снимок, не дожидаясь следующего отскока
	if fields, ok := update.(map[string]interface{}); ok {
		if scores, ok := fields["scores"].(drill.Scores); ok {
			h.UpdateScores(sessionID, scores)
		}
	}

	frame := SessionUpdate{
		SessionID: sessionID,
		SentAt:    time.Now().UnixMilli(),
		Update:    update,
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal session update: %v", err)
		return
	}

	select {
	case h.broadcast <- envelope{sessionID: sessionID, payload: payload}:
	default:
		log.Printf("[WARN] Broadcast channel full, dropping message")
	}
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetLastScores возвращает последние оценки сессии
func (h *Hub) GetLastScores(sessionID string) (drill.Scores, bool) {
	h.scoresMu.RLock()
	defer h.scoresMu.RUnlock()
	scores, ok := h.lastScores[sessionID]
	return scores, ok
}

// UpdateScores обновляет последние оценки сессии
func (h *Hub) UpdateScores(sessionID string, scores drill.Scores) {
	h.scoresMu.Lock()
	defer h.scoresMu.Unlock()
	h.lastScores[sessionID] = scores
}

// HandleWebSocket обрабатывает WebSocket соединения
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade connection: %v", err)
		return
	}

	sessionID := r.URL.Query().Get("session_id")

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
	}

	client.hub.register <- client

	// Подписчику конкретной сессии сразу уходит последний снимок оценок
	if sessionID != "" {
		if scores, ok := h.GetLastScores(sessionID); ok {
			frame := SessionUpdate{
				SessionID: sessionID,
				SentAt:    time.Now().UnixMilli(),
				Update:    map[string]interface{}{"type": "scores_snapshot", "scores": scores},
			}
			if payload, err := json.Marshal(frame); err == nil {
				client.send <- payload
			}
		}
	}

	// Запускаем горутины для клиента
	go client.writePump()
	go client.readPump()
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[ERROR] Failed to write message: %v", err)
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
