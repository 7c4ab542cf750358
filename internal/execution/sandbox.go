package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"tradecore/internal/market"
	"tradecore/internal/models"
	"tradecore/pkg/crypto"
	"tradecore/pkg/ratelimit"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const sandboxOrdersPath = "/v1/orders"

// SandboxConfig настройки адаптера песочницы брокера
type SandboxConfig struct {
	Name    string
	BaseURL string

	// APIKey / APISecret в открытом виде или зашифрованные pkg/crypto (если передан Sealer)
	APIKey    string
	APISecret string

	Timeout   time.Duration
	RateLimit float64 // запросов в секунду; 0 = без ограничения
	Burst     float64

	Transport   TransportConfig
	Commissions market.CommissionTable
}

// SandboxAdapter сетевой адаптер к REST API песочницы брокера.
//
// Протокол:
//
//	POST {base}/v1/orders, тело sandboxOrderRequest
//	X-API-KEY, X-TIMESTAMP, X-SIGNATURE = hex(HMAC-SHA256(secret, timestamp + key + body))
//	X-IDEMPOTENCY-KEY = ID ордера: повтор роутера не создаёт дубль у брокера
//
// Классификация ошибок: сеть, таймаут, 429 и 5xx -> retry.Temporary; прочие 4xx
// и отказ брокера -> retry.Permanent. Всё завёрнуто в ExecutionFailed.
type SandboxAdapter struct {
	name        string
	apiKey      string
	apiSecret   string
	client      *resty.Client
	limiter     *ratelimit.RateLimiter
	commissions market.CommissionTable
	logger      *utils.Logger
	now         func() time.Time
}

type sandboxOrderRequest struct {
	ClientOrderID string           `json:"client_order_id"`
	Account       string           `json:"account"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Quantity      int              `json:"quantity"`
	Type          string           `json:"type"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	Tag           string           `json:"tag,omitempty"`
}

type sandboxFill struct {
	ID         string           `json:"id"`
	Price      decimal.Decimal  `json:"price"`
	Quantity   int              `json:"quantity"`
	Commission *decimal.Decimal `json:"commission,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type sandboxOrderResponse struct {
	OrderID string        `json:"order_id"`
	Status  string        `json:"status"` // filled, partially_filled, working, rejected
	Message string        `json:"message"`
	Fills   []sandboxFill `json:"fills"`
}

// NewSandboxAdapter создаёт адаптер. sealer может быть nil, тогда ключи в открытом виде.
func NewSandboxAdapter(cfg SandboxConfig, sealer *crypto.Sealer, logger *utils.Logger) (*SandboxAdapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("sandbox adapter: name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sandbox adapter %s: base url is required", cfg.Name)
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	key, secret := cfg.APIKey, cfg.APISecret
	if sealer != nil {
		var err error
		if key, err = openCredential(sealer, key); err != nil {
			return nil, fmt.Errorf("sandbox adapter %s: api key: %w", cfg.Name, err)
		}
		if secret, err = openCredential(sealer, secret); err != nil {
			return nil, fmt.Errorf("sandbox adapter %s: api secret: %w", cfg.Name, err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Transport == (TransportConfig{}) {
		cfg.Transport = DefaultTransportConfig()
	}
	if cfg.Commissions == (market.CommissionTable{}) {
		cfg.Commissions = market.DefaultCommissions()
	}

	client := resty.New().
		SetTransport(NewTransport(cfg.Transport)).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "tradecore/1.0")

	a := &SandboxAdapter{
		name:        cfg.Name,
		apiKey:      key,
		apiSecret:   secret,
		client:      client,
		commissions: cfg.Commissions,
		logger:      logger.WithAdapter(cfg.Name),
		now:         func() time.Time { return time.Now().UTC() },
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.RateLimit
		}
		a.limiter = ratelimit.NewRateLimiter(cfg.RateLimit, burst)
	}
	return a, nil
}

func openCredential(sealer *crypto.Sealer, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return sealer.Open(value)
}

var _ Adapter = (*SandboxAdapter)(nil)

// Name имя в реестре
func (a *SandboxAdapter) Name() string { return a.name }

// Close закрывает idle соединения
func (a *SandboxAdapter) Close() {
	if t, ok := a.client.GetClient().Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// sign подпись запроса
func (a *SandboxAdapter) sign(timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(a.apiSecret))
	h.Write([]byte(timestamp))
	h.Write([]byte(a.apiKey))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ExecuteAlert отправляет ордер в песочницу. Одна попытка: повтор делает роутер.
func (a *SandboxAdapter) ExecuteAlert(ctx context.Context, req *Request) (*Report, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, retry.Temporary(a.failure("rate limiter wait", err))
		}
	}

	body, err := json.Marshal(sandboxOrderRequest{
		ClientOrderID: req.OrderID,
		Account:       req.AccountID,
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Quantity:      req.Quantity,
		Type:          string(req.Type),
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		Tag:           req.StrategyID,
	})
	if err != nil {
		return nil, retry.Permanent(a.failure("encode order", err))
	}

	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)
	start := time.Now()
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", a.apiKey).
		SetHeader("X-TIMESTAMP", timestamp).
		SetHeader("X-SIGNATURE", a.sign(timestamp, body)).
		SetHeader("X-IDEMPOTENCY-KEY", req.OrderID).
		SetBody(body).
		Post(sandboxOrdersPath)
	if err != nil {
		return nil, retry.Temporary(a.failure("request failed", err))
	}

	status := resp.StatusCode()
	a.logger.Debug("sandbox response",
		utils.OrderID(req.OrderID),
		utils.Int("status", status),
		utils.Latency(time.Since(start)),
	)

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, retry.Temporary(a.failure(fmt.Sprintf("http %d", status), fmt.Errorf("%s", strings.TrimSpace(resp.String()))))
	case status >= 400:
		return nil, retry.Permanent(a.failure(fmt.Sprintf("http %d", status), fmt.Errorf("%s", strings.TrimSpace(resp.String()))))
	}

	var out sandboxOrderResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, retry.Permanent(a.failure("decode response", err))
	}

	return a.report(req, &out)
}

func (a *SandboxAdapter) report(req *Request, out *sandboxOrderResponse) (*Report, error) {
	switch out.Status {
	case "rejected":
		reason := out.Message
		if reason == "" {
			reason = "rejected by broker"
		}
		return nil, retry.Permanent(models.NewExecutionError(models.KindExecutionFailed,
			fmt.Sprintf("%s: %s", a.name, reason), nil))
	case "working":
		return &Report{Working: true, BrokerOrderID: out.OrderID, Message: out.Message}, nil
	case "filled", "partially_filled":
	default:
		return nil, retry.Permanent(a.failure("unexpected order status", fmt.Errorf("%q", out.Status)))
	}

	report := &Report{BrokerOrderID: out.OrderID, Message: out.Message}
	for _, f := range out.Fills {
		if f.Quantity <= 0 || !f.Price.IsPositive() {
			continue
		}
		commission := a.commissions.For(req.Symbol, f.Quantity)
		if f.Commission != nil {
			commission = *f.Commission
		}
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		ts := f.Timestamp
		if ts.IsZero() {
			ts = a.now()
		}
		report.Fills = append(report.Fills, models.Fill{
			ID:         id,
			OrderID:    req.OrderID,
			AccountID:  req.AccountID,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Price:      f.Price,
			Quantity:   f.Quantity,
			Commission: commission,
			Timestamp:  ts,
		})
	}
	if report.FilledQuantity() > req.Quantity {
		return nil, retry.Permanent(a.failure("broker overfill",
			fmt.Errorf("filled %d of %d", report.FilledQuantity(), req.Quantity)))
	}
	if len(report.Fills) == 0 {
		report.Working = true
	}
	return report, nil
}

func (a *SandboxAdapter) failure(what string, err error) error {
	return models.NewExecutionError(models.KindExecutionFailed, fmt.Sprintf("%s: %s", a.name, what), err)
}
