package models

import (
	"errors"
)

// ErrorKind код ошибки в ExecutionResult
type ErrorKind string

const (
	KindValidation              ErrorKind = "ValidationError"
	KindNoExecutionEngine       ErrorKind = "NoExecutionEngine"
	KindInsufficientBuyingPower ErrorKind = "InsufficientBuyingPower"
	KindRiskViolation           ErrorKind = "RiskViolation"
	KindExecutionFailed         ErrorKind = "ExecutionFailed"
	KindStrategySuspended       ErrorKind = "StrategySuspended"
)

// Сентинельные ошибки; errors.Is(err, ErrRiskViolation) работает для *ExecutionError
var (
	ErrValidation              = errors.New("validation error")
	ErrNoExecutionEngine       = errors.New("no execution engine")
	ErrInsufficientBuyingPower = errors.New("insufficient buying power")
	ErrRiskViolation           = errors.New("risk violation")
	ErrExecutionFailed         = errors.New("execution failed")
	ErrStrategySuspended       = errors.New("strategy suspended")
)

// Ошибки леджера и справочников
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrOrderNotFound      = errors.New("order not found")
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrViolationNotFound  = errors.New("violation not found")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrOrderTerminal      = errors.New("order is in a terminal state")
	ErrResetForbidden     = errors.New("reset is not allowed for production accounts")
	ErrOverfill           = errors.New("fill quantity exceeds remaining order quantity")
	ErrInvalidMode        = errors.New("invalid strategy mode")
	ErrPriceUnavailable   = errors.New("reference price unavailable")
	ErrUnsupportedOrder   = errors.New("unsupported order type")
)

var kindSentinels = map[ErrorKind]error{
	KindValidation:              ErrValidation,
	KindNoExecutionEngine:       ErrNoExecutionEngine,
	KindInsufficientBuyingPower: ErrInsufficientBuyingPower,
	KindRiskViolation:           ErrRiskViolation,
	KindExecutionFailed:         ErrExecutionFailed,
	KindStrategySuspended:       ErrStrategySuspended,
}

// ExecutionError ошибка конвейера исполнения с кодом и причиной
type ExecutionError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// NewExecutionError создаёт ошибку конвейера
func NewExecutionError(kind ErrorKind, reason string, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Reason: reason, Err: err}
}

func (e *ExecutionError) Error() string {
	if e.Reason != "" {
		return string(e.Kind) + ": " + e.Reason
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с сентинелом её кода
func (e *ExecutionError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf извлекает код из цепочки ошибок; неизвестные ошибки -> ExecutionFailed
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindExecutionFailed
}

// ReasonOf человекочитаемая причина
func ReasonOf(err error) string {
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Reason != "" {
		return ee.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
