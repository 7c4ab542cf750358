package utils

import (
	"strconv"
	"time"
)

// time.go - границы торговых суток
//
// Назначение:
// Дневной лимит убытка funded-счетов считается от начала торговых суток.
// Для фьючерсов CME сутки начинаются не в полночь, а в 17:00 по Чикаго,
// поэтому граница задаётся часом отсечки и таймзоной.
//
// Функции:
// - GetDayStart / GetDayStartFrom: полночь UTC
// - SessionClock: начало торговых суток с настраиваемой отсечкой
// - TimeRange: диапазон для выборок из журнала
// - FormatDuration: человекочитаемая длительность

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ============================================================
// Торговые сутки
// ============================================================

// SessionClock вычисляет начало торговых суток.
// RolloverHour - час (в Location), с которого начинаются новые сутки.
// Нулевое значение эквивалентно полуночи UTC.
type SessionClock struct {
	Location     *time.Location
	RolloverHour int
}

// NewSessionClock создаёт часы сессии; неизвестная таймзона заменяется на UTC
func NewSessionClock(tz string, rolloverHour int) SessionClock {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	if rolloverHour < 0 || rolloverHour > 23 {
		rolloverHour = 0
	}
	return SessionClock{Location: loc, RolloverHour: rolloverHour}
}

// SessionStart возвращает момент начала торговых суток, содержащих t
//
// Пример (America/Chicago, 17):
//
//	// 2024-03-12 16:59 CT -> 2024-03-11 17:00 CT
//	// 2024-03-12 17:00 CT -> 2024-03-12 17:00 CT
func (c SessionClock) SessionStart(t time.Time) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), c.RolloverHour, 0, 0, 0, loc)
	if local.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start.UTC()
}

// SameSession true, если a и b относятся к одним торговым суткам
func (c SessionClock) SameSession(a, b time.Time) bool {
	return c.SessionStart(a).Equal(c.SessionStart(b))
}

// ============================================================
// Диапазоны
// ============================================================

// TimeRange представляет временной диапазон
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон (границы включительно)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// GetLastNDays возвращает диапазон последних n дней (включая сегодня)
func GetLastNDays(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: GetDayStartFrom(now.AddDate(0, 0, -(n - 1))),
		End:   now,
	}
}

// ============================================================
// Форматирование
// ============================================================

// FormatDuration форматирует продолжительность: "45s", "5m30s", "2h15m", "3d5h"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		if hours > 0 {
			return strconv.Itoa(days) + "d" + strconv.Itoa(hours) + "h"
		}
		return strconv.Itoa(days) + "d"
	case hours > 0:
		if minutes > 0 {
			return strconv.Itoa(hours) + "h" + strconv.Itoa(minutes) + "m"
		}
		return strconv.Itoa(hours) + "h"
	case minutes > 0:
		if seconds > 0 {
			return strconv.Itoa(minutes) + "m" + strconv.Itoa(seconds) + "s"
		}
		return strconv.Itoa(minutes) + "m"
	}
	return strconv.Itoa(seconds) + "s"
}

// UnixMillis возвращает текущее время в миллисекундах Unix
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis конвертирует миллисекунды Unix в time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
