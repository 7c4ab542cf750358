package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradecore/internal/api/handlers"
	"tradecore/internal/api/middleware"
	"tradecore/internal/service"
	"tradecore/pkg/crypto"
	"tradecore/pkg/ratelimit"
	"tradecore/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Service service.TradingServiceInterface

	// Stream обработчик /ws/stream (websocket.Hub.ServeWS); nil - маршрут не регистрируется
	Stream http.HandlerFunc

	Verifier       *crypto.TokenVerifier
	AlertLimiter   *ratelimit.KeyedLimiter
	AllowedOrigins []string
	DebugUsername  string
	DebugPassword  string
	Logger         *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── POST /alerts - маршрутизировать алерт (rate limit по IP)
//	├── /accounts/
//	│   ├── GET / - список счетов
//	│   ├── GET /{id} - счёт
//	│   ├── POST /{id}/reset - сброс
//	│   ├── POST /{id}/flatten - закрыть все позиции
//	│   ├── GET /{id}/orders | /fills | /trades | /metrics | /violations
//	├── POST /orders/{id}/cancel - отменить ордер
//	├── POST /violations/{id}/resolve - снять нарушение
//	├── /strategies/
//	│   ├── GET / - список стратегий
//	│   ├── GET /{id} - состояние стратегии
//	│   └── PUT /{id}/mode - ручная смена режима
//	└── POST /prices/{symbol} - установить референсную цену
//
// /ws/stream - WebSocket поток событий (auth как у API)
// /metrics - Prometheus
// /health - статус
// /debug/pprof/ - профилирование (Basic auth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (API и WebSocket)
// 5. RateLimit (только приём алертов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	auth := middleware.Auth(deps.Verifier)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)

	if deps.Service != nil {
		alertHandler := handlers.NewAlertHandler(deps.Service)
		accountHandler := handlers.NewAccountHandler(deps.Service)
		strategyHandler := handlers.NewStrategyHandler(deps.Service)
		priceHandler := handlers.NewPriceHandler(deps.Service)

		// Alert routes
		api.Handle("/alerts", middleware.RateLimit(deps.AlertLimiter)(http.HandlerFunc(alertHandler.SubmitAlert))).
			Methods(http.MethodPost, http.MethodOptions)

		// Account routes
		api.HandleFunc("/accounts", accountHandler.GetAccounts).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}", accountHandler.GetAccount).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/reset", accountHandler.ResetAccount).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/accounts/{id}/flatten", accountHandler.FlattenAccount).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/accounts/{id}/orders", accountHandler.GetOrders).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/fills", accountHandler.GetFills).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/trades", accountHandler.GetTrades).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/metrics", accountHandler.GetMetrics).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/violations", accountHandler.GetViolations).Methods(http.MethodGet)
		api.HandleFunc("/orders/{id}/cancel", accountHandler.CancelOrder).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/violations/{id}/resolve", accountHandler.ResolveViolation).Methods(http.MethodPost, http.MethodOptions)

		// Strategy routes
		api.HandleFunc("/strategies", strategyHandler.GetStrategies).Methods(http.MethodGet)
		api.HandleFunc("/strategies/{id}", strategyHandler.GetStrategy).Methods(http.MethodGet)
		api.HandleFunc("/strategies/{id}/mode", strategyHandler.SetMode).Methods(http.MethodPut, http.MethodOptions)

		// Price routes
		api.HandleFunc("/prices/{symbol}", priceHandler.SetPrice).Methods(http.MethodPost, http.MethodOptions)
	}

	// WebSocket route
	if deps.Stream != nil {
		router.Handle("/ws/stream", auth(deps.Stream)).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", handlers.NewHealthHandler(deps.Service).Health).Methods(http.MethodGet)

	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth(deps.DebugUsername, deps.DebugPassword))
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)

	return router
}
