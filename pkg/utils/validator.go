package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных алертов и настроек
//
// Назначение:
// Проверка формата полей, приходящих от TradingView/Kafka/REST,
// до того как алерт попадёт в роутер.
//
// Функции:
// - ValidateSymbol / NormalizeSymbol: тикер инструмента (ESZ4, ES1!, SPY, OCC опционы)
// - ValidateQuantity: количество контрактов/акций (> 0)
// - ValidateSide: buy | sell | close
// - ValidateAccountGroup: имя группы счетов
// - ValidatePercentage: 0..100
// - ValidateAPIToken: минимальная длина токена API

var (
	ErrEmptySymbol      = errors.New("symbol is required")
	ErrInvalidSymbol    = errors.New("symbol contains invalid characters")
	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrInvalidSide      = errors.New("side must be one of buy, sell, close")
	ErrInvalidGroup     = errors.New("account group contains invalid characters")
	ErrInvalidPercent   = errors.New("percentage must be within [0, 100]")
	ErrTokenTooShort    = errors.New("api token is too short")
	ErrQuantityTooLarge = errors.New("quantity exceeds hard limit")
)

// MaxAlertQuantity жёсткий предел на количество в одном алерте
const MaxAlertQuantity = 100000

var (
	symbolRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9!._/\-]{0,31}$`)
	groupRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)
)

// NormalizeSymbol приводит тикер к верхнему регистру без пробелов по краям
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol проверяет тикер (после нормализации)
func ValidateSymbol(symbol string) error {
	s := NormalizeSymbol(symbol)
	if s == "" {
		return ErrEmptySymbol
	}
	if !symbolRe.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// ValidateQuantity проверяет количество
func ValidateQuantity(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > MaxAlertQuantity {
		return fmt.Errorf("%w: %d > %d", ErrQuantityTooLarge, qty, MaxAlertQuantity)
	}
	return nil
}

// ValidateSide проверяет направление алерта
func ValidateSide(side string) error {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy", "sell", "close":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidSide, side)
}

// ValidateAccountGroup проверяет имя группы; пустая строка допустима (= auto)
func ValidateAccountGroup(group string) error {
	g := strings.ToLower(strings.TrimSpace(group))
	if g == "" {
		return nil
	}
	if !groupRe.MatchString(g) {
		return fmt.Errorf("%w: %q", ErrInvalidGroup, group)
	}
	return nil
}

// ValidatePercentage проверяет процент в диапазоне [0, 100]
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercent
	}
	return nil
}

// ValidateAPIToken проверяет токен доступа к API
func ValidateAPIToken(token string) error {
	if len(strings.TrimSpace(token)) < 16 {
		return ErrTokenTooShort
	}
	return nil
}
