package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"tradecore/internal/events"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ sync.Pool для JSON буферов ============

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

const broadcastBufferSize = 1024

// Hub управляет всеми активными WebSocket соединениями
//
// Получает события шины (events.Sink), сериализует их один раз и раздаёт
// всем подписчикам. Подписчик видит только события, прошедшие его фильтр
// (счёт и/или стратегия). Медленные клиенты отключаются, чтобы не тормозить остальных.
//
// Использование:
//  1. hub := NewHub(logger)
//  2. go hub.Run()
//  3. bus.AddSink(hub)
//  4. router.HandleFunc("/ws/stream", hub.ServeWS)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan *frame
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	replay  Replayer
	origins *OriginChecker

	dropped atomic.Int64

	mu     sync.RWMutex
	logger *utils.Logger
}

// Replayer источник пропущенных событий для клиента с ?since=
type Replayer interface {
	Since(seq uint64) ([]models.Event, bool)
	LastSeq() uint64
}

// frame сериализованное событие с ключами для фильтрации
type frame struct {
	seq        uint64
	accountID  string
	strategyID string
	data       []byte
}

var _ events.Sink = (*Hub)(nil)

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *frame, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(nil),
		logger:     logger.WithComponent("websocket"),
	}
}

// SetReplayer подключает историю событий для догрузки при подключении
func (h *Hub) SetReplayer(r Replayer) { h.replay = r }

// SetAllowedOrigins список разрешённых Origin; пустой список разрешает всё
func (h *Hub) SetAllowedOrigins(origins []string) { h.origins = NewOriginChecker(origins) }

// Run главный цикл Hub; завершается по Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", utils.Int("clients", total))

		case f := <-h.broadcast:
			h.deliver(f)
		}
	}
}

// deliver копирует список клиентов под RLock, отправляет без блокировки,
// медленных удаляет под Write Lock
func (h *Hub) deliver(f *frame) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var toRemove []*Client
	for _, client := range clients {
		if !client.filter.match(f.accountID, f.strategyID) {
			continue
		}
		select {
		case client.send <- f:
		default:
			toRemove = append(toRemove, client)
		}
	}

	if len(toRemove) > 0 {
		h.mu.Lock()
		for _, client := range toRemove {
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
		total := len(h.clients)
		h.mu.Unlock()
		h.logger.Warn("removed slow clients", utils.Int("removed", len(toRemove)), utils.Int("clients", total))
	}
}

// Stop останавливает Run и закрывает все клиентские каналы
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Name events.Sink
func (h *Hub) Name() string { return "websocket" }

// Publish events.Sink: не блокируется, при переполненной очереди событие отбрасывается
func (h *Hub) Publish(ev models.Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &frame{seq: ev.Seq, accountID: ev.AccountID, strategyID: ev.StrategyID, data: data}:
		return nil
	default:
		h.dropped.Add(1)
		return events.ErrSinkFull
	}
}

// encode сериализует событие через пул буферов
func encode(v interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ClientCount количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages сколько событий не поместилось в очередь рассылки
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
