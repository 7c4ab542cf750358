// Package metrics содержит Prometheus метрики ядра исполнения.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики ядра исполнения
// ============================================================
//
// Экспортируются через GET /metrics (promhttp).
// - маршрутизация алертов: итог и код ошибки
// - латентность адаптеров и повторы
// - fill'ы и реализованный P&L
// - переходы режимов стратегий
// - нарушения риск-правил и аварийные flatten

const namespace = "tradecore"

// ============ Маршрутизация ============

// AlertsRouted - алерты по итогу маршрутизации
var AlertsRouted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "alerts_total",
		Help:      "Alerts processed by the router by status and error kind",
	},
	[]string{"status", "kind"},
)

// PaperRewrites - алерты, переписанные губернатором в paper-группу
var PaperRewrites = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "paper_rewrites_total",
		Help:      "Alerts rerouted to a paper account group",
	},
	[]string{"strategy"},
)

// RouteLatency - полное время Route
var RouteLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "route_latency_ms",
		Help:      "End-to-end alert routing latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
)

// ============ Адаптеры ============

// AdapterLatency - время одной попытки адаптера
var AdapterLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "execute_latency_ms",
		Help:      "Adapter execute latency in milliseconds",
		Buckets:   []float64{1, 10, 50, 100, 200, 500, 1000, 2000, 5000},
	},
	[]string{"adapter", "result"},
)

// AdapterRetries - повторные попытки адаптера
var AdapterRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "retries_total",
		Help:      "Adapter retries after temporary failures",
	},
	[]string{"adapter"},
)

// AdapterPanics - паники адаптеров, перехваченные роутером
var AdapterPanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "panics_total",
		Help:      "Adapter panics recovered at the router boundary",
	},
	[]string{"adapter"},
)

// ============ Леджер ============

// FillsTotal - применённые fill'ы
var FillsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "fills_total",
		Help:      "Fills applied to the ledger",
	},
	[]string{"account", "side"},
)

// TradesClosed - закрытые сделки по режиму и результату
var TradesClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "trades_closed_total",
		Help:      "Closed trade outcomes by mode and result",
	},
	[]string{"mode", "result"}, // result: win, loss
)

// AccountEquity - equity счёта
var AccountEquity = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "account_equity",
		Help:      "Account equity (balance plus unrealized P&L)",
	},
	[]string{"account"},
)

// ============ Губернатор ============

// StrategyTransitions - переходы режимов стратегий
var StrategyTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "governor",
		Name:      "transitions_total",
		Help:      "Strategy mode transitions",
	},
	[]string{"from", "to", "manual"},
)

// SetsClosed - закрытые наборы сделок
var SetsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "governor",
		Name:      "sets_closed_total",
		Help:      "Strategy evaluation sets closed",
	},
	[]string{"mode", "passed"},
)

// ============ Риск ============

// RuleViolations - нарушения риск-правил
var RuleViolations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "violations_total",
		Help:      "Funded account rule violations",
	},
	[]string{"rule", "severity"},
)

// PrecheckRejections - отказы предпроверки
var PrecheckRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "precheck_rejections_total",
		Help:      "Alerts blocked by the risk precheck",
	},
	[]string{"reason"},
)

// EmergencyFlattens - аварийные закрытия
var EmergencyFlattens = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "emergency_flattens_total",
		Help:      "Risk-triggered account flattens",
	},
	[]string{"result"}, // success, failed
)

// ============ Доставка событий ============

// EventsPublished - опубликованные push-события
var EventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Push events published by type",
	},
	[]string{"type"},
)

// EventsDropped - события, не доставленные из-за переполнения буферов
var EventsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Events dropped because a sink buffer was full",
	},
	[]string{"sink"},
)

// ============ Вспомогательные функции ============

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordRoute записывает итог маршрутизации
func RecordRoute(status, kind string, elapsed time.Duration) {
	if kind == "" {
		kind = "none"
	}
	AlertsRouted.WithLabelValues(status, kind).Inc()
	RouteLatency.Observe(ms(elapsed))
}

// RecordAdapterCall записывает попытку адаптера
func RecordAdapterCall(adapter string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	AdapterLatency.WithLabelValues(adapter, result).Observe(ms(elapsed))
}

// RecordFill записывает fill
func RecordFill(account, side string) {
	FillsTotal.WithLabelValues(account, side).Inc()
}

// RecordTradeOutcome записывает закрытую сделку
func RecordTradeOutcome(mode string, win bool) {
	result := "loss"
	if win {
		result = "win"
	}
	TradesClosed.WithLabelValues(mode, result).Inc()
}

// UpdateEquity обновляет equity счёта
func UpdateEquity(account string, equity float64) {
	AccountEquity.WithLabelValues(account).Set(equity)
}

// RecordTransition записывает переход режима стратегии
func RecordTransition(from, to string, manual bool) {
	m := "no"
	if manual {
		m = "yes"
	}
	StrategyTransitions.WithLabelValues(from, to, m).Inc()
}

// RecordSetClosed записывает закрытие набора
func RecordSetClosed(mode string, passed bool) {
	p := "no"
	if passed {
		p = "yes"
	}
	SetsClosed.WithLabelValues(mode, p).Inc()
}

// RecordViolation записывает нарушение правила
func RecordViolation(rule, severity string) {
	RuleViolations.WithLabelValues(rule, severity).Inc()
}

// RecordPrecheckRejection записывает отказ предпроверки
func RecordPrecheckRejection(reason string) {
	PrecheckRejections.WithLabelValues(reason).Inc()
}

// RecordFlatten записывает аварийный flatten
func RecordFlatten(ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	EmergencyFlattens.WithLabelValues(result).Inc()
}

// RecordEvent записывает публикацию события
func RecordEvent(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped записывает потерю события
func RecordEventDropped(sink string) {
	EventsDropped.WithLabelValues(sink).Inc()
}
