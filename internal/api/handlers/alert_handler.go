package handlers

import (
	"net/http"

	"tradecore/internal/models"
	"tradecore/internal/service"
)

// AlertHandler приём торговых алертов.
//
// Endpoints:
// - POST /api/v1/alerts - маршрутизировать алерт
type AlertHandler struct {
	svc service.TradingServiceInterface
}

// NewAlertHandler создает новый AlertHandler
func NewAlertHandler(svc service.TradingServiceInterface) *AlertHandler {
	return &AlertHandler{svc: svc}
}

// SubmitAlert принимает нормализованный алерт и возвращает ExecutionResult.
//
// POST /api/v1/alerts
//
// Request:
//
//	{
//	  "symbol": "ES",
//	  "side": "buy",
//	  "quantity": 1,
//	  "price": "4990.25",
//	  "strategy_id": "momentum_v1",
//	  "account_group": "topstep"
//	}
//
// Response 200 OK (success), 400 (ValidationError), 422 (RiskViolation,
// InsufficientBuyingPower, StrategySuspended), 502 (ExecutionFailed),
// 503 (NoExecutionEngine):
//
//	{"status": "success", "order": {...}, "fill": {...}}
//	{"status": "rejected", "kind": "RiskViolation", "reason": "max contracts 5 exceeded"}
func (h *AlertHandler) SubmitAlert(w http.ResponseWriter, r *http.Request) {
	var alert models.Alert
	if err := decodeJSON(w, r, &alert, false); err != nil {
		res := models.Rejected(models.KindValidation, err.Error())
		respondWithJSON(w, resultStatusCode(res), res)
		return
	}

	res := h.svc.SubmitAlert(r.Context(), alert)
	respondWithJSON(w, resultStatusCode(res), res)
}
