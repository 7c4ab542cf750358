package router

import (
	"context"
	"fmt"
	"strings"

	"tradecore/internal/market"
	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// Target счёт и адаптер, на которые уходит алерт
type Target struct {
	Group     string `json:"group"`
	AccountID string `json:"account_id"`
	Adapter   string `json:"adapter"`
}

// Resolve группа счетов -> счёт и адаптер
//
//	явная группа из конфигурации   -> её счёт
//	auto                           -> группа по классу инструмента
//	paper_<group>                  -> paper-счёт симулятора, создаётся при первом обращении
//	нет счёта или адаптера         -> NoExecutionEngine
func (r *Router) Resolve(ctx context.Context, group, symbol string) (Target, error) {
	group = strings.ToLower(strings.TrimSpace(group))
	if group == "" {
		group = models.GroupAuto
	}

	// явная конфигурация имеет приоритет, в том числе для paper_ групп
	if accountID, ok := r.config.Groups[group]; ok {
		return r.targetFor(group, accountID)
	}

	if models.IsPaperGroup(group) {
		return r.paperTarget(ctx, group, symbol)
	}

	base := group
	if base == models.GroupAuto {
		base = r.autoGroup(symbol)
	}
	accountID, ok := r.config.Groups[base]
	if !ok {
		return Target{}, models.NewExecutionError(models.KindNoExecutionEngine,
			fmt.Sprintf("account group %q is not configured", base), nil)
	}
	return r.targetFor(base, accountID)
}

// autoGroup группа по классу инструмента
func (r *Router) autoGroup(symbol string) string {
	switch class := market.Classify(symbol).Class; {
	case class.IsFutures():
		return r.config.AutoFuturesGroup
	case class == market.ClassOption || class == market.ClassEquity:
		return r.config.AutoEquitiesGroup
	default:
		return r.config.AutoDefaultGroup
	}
}

func (r *Router) targetFor(group, accountID string) (Target, error) {
	acc, err := r.ledger.GetAccount(accountID)
	if err != nil {
		return Target{}, models.NewExecutionError(models.KindNoExecutionEngine,
			fmt.Sprintf("account %s for group %q is not registered", accountID, group), err)
	}
	return Target{Group: group, AccountID: acc.ID, Adapter: r.adapterFor(acc)}, nil
}

// paperTarget paper-счёт для paper_<group>. paper_auto раскрывается по классу
// инструмента, чтобы paper-сделки фьючерсов и акций не смешивались на одном счёте.
func (r *Router) paperTarget(ctx context.Context, group, symbol string) (Target, error) {
	base := strings.TrimPrefix(group, models.PaperGroupPrefix)
	if base == "" {
		return Target{}, models.NewExecutionError(models.KindValidation, "empty paper account group", nil)
	}
	if base == models.GroupAuto {
		base = r.autoGroup(symbol)
	}
	accountID := models.PaperGroupPrefix + base

	acc, err := r.ledger.EnsureAccount(ctx, models.Account{
		ID:             accountID,
		Name:           "Paper " + base,
		ExecutionMode:  models.ExecSimulator,
		Environment:    models.EnvTest,
		Adapter:        r.config.SimulatorAdapter,
		InitialBalance: r.config.PaperBalance,
	})
	if err != nil {
		return Target{}, models.NewExecutionError(models.KindNoExecutionEngine,
			fmt.Sprintf("paper account %s is not available", accountID), err)
	}
	r.logger.Debug("paper target resolved", utils.Group(group), utils.AccountID(acc.ID))
	return Target{Group: group, AccountID: acc.ID, Adapter: r.adapterFor(acc)}, nil
}

// adapterFor адаптер счёта; счета симулятора без явного адаптера идут в симулятор
func (r *Router) adapterFor(acc *models.Account) string {
	if acc.Adapter != "" {
		return acc.Adapter
	}
	if acc.ExecutionMode == models.ExecSimulator {
		return r.config.SimulatorAdapter
	}
	return ""
}
