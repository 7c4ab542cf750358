package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tradecore/internal/service"
)

// StrategyHandler обрабатывает HTTP запросы по стратегиям губернатора.
//
// Endpoints:
// - GET /api/v1/strategies - все стратегии с режимами
// - GET /api/v1/strategies/{id} - наборы, режим, история переходов
// - PUT /api/v1/strategies/{id}/mode - ручная смена режима
type StrategyHandler struct {
	svc service.TradingServiceInterface
}

// NewStrategyHandler создает новый StrategyHandler
func NewStrategyHandler(svc service.TradingServiceInterface) *StrategyHandler {
	return &StrategyHandler{svc: svc}
}

// modeRequest тело PUT /strategies/{id}/mode
type modeRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
}

// GetStrategies GET /api/v1/strategies
func (h *StrategyHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	list := h.svc.ListStrategies()
	if list == nil {
		list = []*service.StrategyView{}
	}
	respondWithJSON(w, http.StatusOK, list)
}

// GetStrategy GET /api/v1/strategies/{id}
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetStrategyPerformance(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// SetMode PUT /api/v1/strategies/{id}/mode
//
// Request:
//
//	{"mode": "suspended", "reason": "broker maintenance"}
//
// Неизвестная стратегия регистрируется с указанным режимом.
func (h *StrategyHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}

	view, err := h.svc.OverrideStrategyMode(r.Context(), mux.Vars(r)["id"], req.Mode, req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}
