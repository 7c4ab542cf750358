package websocket

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MessageType тип служебного сообщения потока.
// События шины уходят клиенту как есть (models.Event), служебные сообщения
// отличаются полем type.
type MessageType string

const (
	// MessageTypeHello первое сообщение после подключения: последний Seq сервера
	MessageTypeHello MessageType = "hello"

	// MessageTypeResync часть событий после since уже вытеснена из истории,
	// клиенту нужно перечитать состояние через REST
	MessageTypeResync MessageType = "resync"
)

// ControlMessage служебное сообщение
type ControlMessage struct {
	Type      MessageType `json:"type"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
}

func newControlMessage(t MessageType, seq uint64) *ControlMessage {
	return &ControlMessage{Type: t, Seq: seq, Timestamp: time.Now().UTC()}
}

// Filter подписка клиента. Пустые множества означают "все".
type Filter struct {
	accounts   map[string]struct{}
	strategies map[string]struct{}
}

// ParseFilter читает ?account=a,b&strategy=s1 из query
func ParseFilter(q url.Values) Filter {
	return Filter{
		accounts:   splitSet(q["account"]),
		strategies: splitSet(q["strategy"]),
	}
}

// ParseSince читает ?since=N; ok=false если параметр не задан или некорректен
func ParseSince(q url.Values) (uint64, bool) {
	raw := q.Get("since")
	if raw == "" {
		return 0, false
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func splitSet(values []string) map[string]struct{} {
	var set map[string]struct{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if set == nil {
				set = make(map[string]struct{})
			}
			set[part] = struct{}{}
		}
	}
	return set
}

// match событие проходит фильтр. Событие без ключа (например, переход
// стратегии без счёта) не отсекается фильтром по этому ключу.
func (f Filter) match(accountID, strategyID string) bool {
	if len(f.accounts) > 0 && accountID != "" {
		if _, ok := f.accounts[accountID]; !ok {
			return false
		}
	}
	if len(f.strategies) > 0 && strategyID != "" {
		if _, ok := f.strategies[strategyID]; !ok {
			return false
		}
	}
	return true
}
