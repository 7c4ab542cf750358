package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/pkg/utils"
)

const (
	// Время ожидания записи сообщения
	writeWait = 10 * time.Second

	// Время ожидания между pong сообщениями
	pongWait = 60 * time.Second

	// Интервал отправки ping сообщений (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Клиент ничего не шлёт кроме pong/close
	maxMessageSize = 4096

	clientSendBufferSize = 512
)

// OriginChecker проверяет Origin с O(1) lookup через map
type OriginChecker struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

// NewOriginChecker пустой список или "*" разрешает любые Origin
func NewOriginChecker(origins []string) *OriginChecker {
	checker := &OriginChecker{allowedOrigins: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			checker.allowAll = true
		}
		if origin != "" {
			checker.allowedOrigins[origin] = struct{}{}
		}
	}
	if len(checker.allowedOrigins) == 0 {
		checker.allowAll = true
	}
	return checker
}

// Check проверяет origin за O(1)
func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" {
		return true // не браузер (curl, боты)
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowedOrigins[origin]
	return ok
}

// Client одно WebSocket соединение
//
// Две горутины на клиента: readPump следит за живостью соединения,
// writePump единственный пишет в сокет. При подключении с ?since=N
// writePump сначала отправляет пропущенные события из истории шины,
// затем живой поток без дублей по Seq.
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	send   chan *frame
	filter Filter

	since    uint64
	hasSince bool
}

// readPump читает входящие кадры, чтобы обрабатывать pong и close
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", utils.Err(err))
			}
			return
		}
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	lastSeq, ok := c.greet()
	if !ok {
		return
	}

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if f.seq <= lastSeq {
				continue // уже отправлено из истории
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// greet догрузка истории и hello с Seq, до которого клиент получил события.
// Возвращает порог для отсечения дублей живого потока.
func (c *Client) greet() (uint64, bool) {
	if c.hub.replay == nil {
		return 0, c.writeJSON(newControlMessage(MessageTypeHello, 0))
	}
	if !c.hasSince {
		// живой поток начинается после регистрации, история не нужна
		return 0, c.writeJSON(newControlMessage(MessageTypeHello, c.hub.replay.LastSeq()))
	}

	lastSeq := c.since
	missed, complete := c.hub.replay.Since(c.since)
	if !complete && !c.writeJSON(newControlMessage(MessageTypeResync, c.since)) {
		return 0, false
	}
	for _, ev := range missed {
		lastSeq = ev.Seq
		if !c.filter.match(ev.AccountID, ev.StrategyID) {
			continue
		}
		if !c.writeJSON(ev) {
			return 0, false
		}
	}
	return lastSeq, c.writeJSON(newControlMessage(MessageTypeHello, lastSeq))
}

func (c *Client) writeJSON(v interface{}) bool {
	data, err := encode(v)
	if err != nil {
		c.hub.logger.Error("encode websocket message", utils.Err(err))
		return false
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data) == nil
}

// ServeWS апгрейдит HTTP соединение и подписывает клиента на поток событий
//
//	GET /ws/stream?account=topstep_1&strategy=s1&since=120
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   4096,
		CheckOrigin:       func(r *http.Request) bool { return h.origins.Check(r.Header.Get("Origin")) },
		EnableCompression: true,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", utils.Err(err))
		return
	}

	q := r.URL.Query()
	client := &Client{
		conn:   conn,
		hub:    h,
		send:   make(chan *frame, clientSendBufferSize),
		filter: ParseFilter(q),
	}
	client.since, client.hasSince = ParseSince(q)

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
