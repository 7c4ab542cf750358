package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket для ограничения частоты запросов
//
// Применяется в двух местах:
// - песочницы брокеров (Tradovate demo, Alpaca paper) имеют жёсткие лимиты на REST
// - приём алертов по HTTP: защита от "шторма" повторных вебхуков
//
// Ведро наполняется со скоростью rate токенов/сек до ёмкости burst.
// Каждый запрос потребляет один токен.
//
//	limiter := NewRateLimiter(5, 10)
//	err := limiter.Wait(ctx)   // блокирующее ожидание
//	if limiter.Allow() { ... } // неблокирующая проверка
type RateLimiter struct {
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter создаёт limiter; rate<=0 -> 10 req/sec, burst<rate -> burst=rate
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill вызывается под lock'ом
func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
	}
	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow забирает токен без блокировки
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens текущее количество токенов (мониторинг)
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// SetRate меняет скорость пополнения
func (rl *RateLimiter) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	rl.rate = rate
}

// ============================================================
// KeyedLimiter - отдельное ведро на ключ
// ============================================================

// KeyedLimiter держит по ведру на ключ (IP клиента, счёт брокера).
// Ведра, не использовавшиеся дольше idleTTL, удаляются при Sweep.
type KeyedLimiter struct {
	rate    float64
	burst   float64
	idleTTL time.Duration

	mu       sync.Mutex
	limiters map[string]*keyedEntry
}

type keyedEntry struct {
	limiter  *RateLimiter
	lastUsed time.Time
}

// NewKeyedLimiter создаёт limiter с одинаковыми параметрами для всех ключей
func NewKeyedLimiter(rate, burst float64, idleTTL time.Duration) *KeyedLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		rate:     rate,
		burst:    burst,
		idleTTL:  idleTTL,
		limiters: make(map[string]*keyedEntry),
	}
}

func (kl *KeyedLimiter) get(key string) *RateLimiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: NewRateLimiter(kl.rate, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// Allow неблокирующая проверка для ключа
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.get(key).Allow()
}

// Wait блокирующее ожидание для ключа
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.get(key).Wait(ctx)
}

// Sweep удаляет простаивающие ведра, возвращает число удалённых
func (kl *KeyedLimiter) Sweep() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	cutoff := time.Now().Add(-kl.idleTTL)
	removed := 0
	for k, e := range kl.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(kl.limiters, k)
			removed++
		}
	}
	return removed
}

// Len количество активных ключей
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}
