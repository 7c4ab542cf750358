package governor

import "tradecore/internal/models"

// AutoTransitions допустимые автоматические переходы на границе набора.
// SUSPENDED сюда не входит: вход и выход только через Override.
var AutoTransitions = map[models.StrategyMode][]models.StrategyMode{
	models.ModeLive:  {models.ModePaper},
	models.ModePaper: {models.ModeLive},
}

// CanAutoTransition проверяет допустимость автоматического перехода
func CanAutoTransition(from, to models.StrategyMode) bool {
	for _, m := range AutoTransitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// ModeInfo описание режима для UI
func ModeInfo(m models.StrategyMode) string {
	switch m {
	case models.ModeLive:
		return "Alerts are routed to the configured account group"
	case models.ModePaper:
		return "Alerts are rerouted to the paper account group"
	case models.ModeSuspended:
		return "Alerts are rejected until the mode is changed manually"
	default:
		return "Unknown mode"
	}
}

// RoutesLive true, если алерты стратегии идут на исходную группу счетов
func RoutesLive(m models.StrategyMode) bool {
	return m == models.ModeLive
}
