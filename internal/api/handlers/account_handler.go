package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tradecore/internal/models"
	"tradecore/internal/service"
)

// AccountHandler обрабатывает HTTP запросы по счетам.
//
// Endpoints:
// - GET  /api/v1/accounts - список счетов
// - GET  /api/v1/accounts/{id} - счёт с позициями
// - POST /api/v1/accounts/{id}/reset - сброс к начальному балансу (не production)
// - POST /api/v1/accounts/{id}/flatten - закрыть все позиции
// - GET  /api/v1/accounts/{id}/orders - ордера
// - GET  /api/v1/accounts/{id}/fills - исполнения
// - GET  /api/v1/accounts/{id}/trades - закрытые сделки
// - GET  /api/v1/accounts/{id}/metrics - win rate, profit factor, drawdown
// - GET  /api/v1/accounts/{id}/violations - нарушения funded-правил
// - POST /api/v1/orders/{id}/cancel - отменить рабочий ордер
// - POST /api/v1/violations/{id}/resolve - снять нарушение вручную
type AccountHandler struct {
	svc service.TradingServiceInterface
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(svc service.TradingServiceInterface) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// accountsResponse список счетов
type accountsResponse struct {
	Accounts []*models.Account `json:"accounts"`
	Total    int               `json:"total"`
}

// flattenResponse итог flatten; Error заполнен при частичной неудаче
type flattenResponse struct {
	AccountID string                    `json:"account_id"`
	Results   []*models.ExecutionResult `json:"results"`
	Error     string                    `json:"error,omitempty"`
}

// GetAccounts GET /api/v1/accounts
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.svc.ListAccounts()
	if accounts == nil {
		accounts = []*models.Account{}
	}
	respondWithJSON(w, http.StatusOK, accountsResponse{Accounts: accounts, Total: len(accounts)})
}

// GetAccount GET /api/v1/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.GetAccount(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, acc)
}

// ResetAccount POST /api/v1/accounts/{id}/reset
//
// Response 403 Forbidden для production-счетов.
func (h *AccountHandler) ResetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.ResetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, acc)
}

// FlattenAccount POST /api/v1/accounts/{id}/flatten
//
// Response 200 OK, если все позиции закрыты; 207 Multi-Status при частичной неудаче.
func (h *AccountHandler) FlattenAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	results, err := h.svc.FlattenAccount(r.Context(), id)
	if err != nil && results == nil {
		handleServiceError(w, err)
		return
	}

	resp := flattenResponse{AccountID: id, Results: results}
	if resp.Results == nil {
		resp.Results = []*models.ExecutionResult{}
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusMultiStatus
	}
	respondWithJSON(w, status, resp)
}

// GetOrders GET /api/v1/accounts/{id}/orders
func (h *AccountHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

// GetFills GET /api/v1/accounts/{id}/fills
func (h *AccountHandler) GetFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.svc.ListFills(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if fills == nil {
		fills = []*models.Fill{}
	}
	respondWithJSON(w, http.StatusOK, fills)
}

// GetTrades GET /api/v1/accounts/{id}/trades
func (h *AccountHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.svc.ListTrades(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if trades == nil {
		trades = []*models.TradeOutcome{}
	}
	respondWithJSON(w, http.StatusOK, trades)
}

// GetMetrics GET /api/v1/accounts/{id}/metrics
func (h *AccountHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMetrics(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, m)
}

// GetViolations GET /api/v1/accounts/{id}/violations
func (h *AccountHandler) GetViolations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListViolations(mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []*models.RuleViolation{}
	}
	respondWithJSON(w, http.StatusOK, list)
}

// CancelOrder POST /api/v1/orders/{id}/cancel
//
// Response 409 Conflict, если ордер уже в терминальном состоянии.
func (h *AccountHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.CancelOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// ResolveViolation POST /api/v1/violations/{id}/resolve
func (h *AccountHandler) ResolveViolation(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.ResolveViolation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}
