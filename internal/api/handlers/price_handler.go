package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"tradecore/internal/service"
)

// PriceHandler ручная установка референсных цен.
//
// Endpoints:
// - POST /api/v1/prices/{symbol} - установить цену и переоценить счета
type PriceHandler struct {
	svc service.TradingServiceInterface
}

// NewPriceHandler создает новый PriceHandler
func NewPriceHandler(svc service.TradingServiceInterface) *PriceHandler {
	return &PriceHandler{svc: svc}
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type priceResponse struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SetPrice POST /api/v1/prices/{symbol}
//
// Request: {"price": "5010.25"}
func (h *PriceHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}

	symbol, err := h.svc.SetPrice(r.Context(), mux.Vars(r)["symbol"], req.Price)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, priceResponse{Symbol: symbol, Price: req.Price, UpdatedAt: time.Now().UTC()})
}

// healthResponse ответ /health
type healthResponse struct {
	Status     string `json:"status"`
	Accounts   int    `json:"accounts"`
	Strategies int    `json:"strategies"`
}

// HealthHandler GET /health
type HealthHandler struct {
	svc service.TradingServiceInterface
}

// NewHealthHandler создает новый HealthHandler
func NewHealthHandler(svc service.TradingServiceInterface) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health отдаёт статус процесса и размеры реестров
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.svc != nil {
		resp.Accounts = len(h.svc.ListAccounts())
		resp.Strategies = len(h.svc.ListStrategies())
	}
	respondWithJSON(w, http.StatusOK, resp)
}
