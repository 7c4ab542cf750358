package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"tradecore/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodySize ограничение тела запроса (алерты и команды маленькие)
const maxBodySize = 64 << 10

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, statusCode int, code, message, details string) {
	respondWithJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// decodeJSON читает тело запроса; пустое тело допустимо, если allowEmpty
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	defer body.Close()

	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrValidation, err)
	}
	return nil
}

// handleServiceError сопоставляет ошибки домена с HTTP статусами
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "account_not_found", "Account not found", err.Error())

	case errors.Is(err, models.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "order_not_found", "Order not found", err.Error())

	case errors.Is(err, models.ErrStrategyNotFound):
		respondWithError(w, http.StatusNotFound, "strategy_not_found", "Strategy not found", err.Error())

	case errors.Is(err, models.ErrViolationNotFound):
		respondWithError(w, http.StatusNotFound, "violation_not_found", "Violation not found", err.Error())

	case errors.Is(err, models.ErrInvalidMode):
		respondWithError(w, http.StatusBadRequest, "invalid_mode", "Mode must be one of live, paper, suspended", err.Error())

	case errors.Is(err, models.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "validation_error", "Invalid request", err.Error())

	case errors.Is(err, models.ErrResetForbidden):
		respondWithError(w, http.StatusForbidden, "reset_forbidden", "Production accounts cannot be reset", err.Error())

	case errors.Is(err, models.ErrOrderTerminal), errors.Is(err, models.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "order_terminal", "Order can no longer be changed", err.Error())

	case errors.Is(err, models.ErrPriceUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, "price_unavailable", "Reference price unavailable", err.Error())

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

// resultStatusCode HTTP статус для результата маршрутизации алерта.
// Тело ответа всегда ExecutionResult; статус нужен вебхук-клиентам для ретраев.
func resultStatusCode(res *models.ExecutionResult) int {
	if res.Succeeded() {
		return http.StatusOK
	}
	switch res.Kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNoExecutionEngine:
		return http.StatusServiceUnavailable
	case models.KindExecutionFailed:
		return http.StatusBadGateway
	default:
		// RiskViolation, InsufficientBuyingPower, StrategySuspended
		return http.StatusUnprocessableEntity
	}
}
