package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config конфигурация повторных попыток
//
// Экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) +- jitter
//
// AttemptTimeout ограничивает каждую попытку отдельно: вызов адаптера
// получает дочерний контекст, истечение которого считается временной ошибкой.
type Config struct {
	// MaxAttempts - общее число попыток, включая первую (<=0 -> 1)
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor 0.0 - 1.0
	JitterFactor float64

	// AttemptTimeout - таймаут одной попытки; 0 = без ограничения
	AttemptTimeout time.Duration

	// RetryIf решает, повторять ли ошибку. По умолчанию IsRetryable.
	RetryIf func(error) bool

	// OnRetry вызывается перед ожиданием очередной попытки
	OnRetry func(attempt int, err error, delay time.Duration)
}

// RouterConfig исходная попытка + один повтор, как требует маршрутизация алертов
func RouterConfig(attemptTimeout time.Duration) Config {
	return Config{
		MaxAttempts:    2,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.1,
		AttemptTimeout: attemptTimeout,
	}
}

// FlattenConfig для принудительного закрытия позиций после нарушения правил:
// больше попыток и короче задержки
func FlattenConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   50 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.1,
		AttemptTimeout: 10 * time.Second,
	}
}

// NetworkConfig для идемпотентных запросов к внешним API (котировки)
func NetworkConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (c *Config) validate() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	if c.RetryIf == nil {
		c.RetryIf = IsRetryable
	}
}

func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do выполняет операцию с повторными попытками.
// Возвращает nil при успехе или ошибку последней попытки.
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return adapter.Submit(ctx, req)
//	}, retry.RouterConfig(5*time.Second))
func Do(ctx context.Context, operation func(ctx context.Context) error, cfg Config) error {
	_, err := DoWithResult(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, cfg)
	return err
}

// DoWithResult выполняет операцию с результатом и повторными попытками
func DoWithResult[T any](ctx context.Context, operation func(ctx context.Context) (T, error), cfg Config) (T, error) {
	cfg.validate()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := runAttempt(ctx, operation, cfg.AttemptTimeout)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Отмена родительского контекста - не повод повторять
		if ctx.Err() != nil || !cfg.RetryIf(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}

	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, operation func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return operation(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := operation(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		// Таймаут попытки - временная ошибка
		return result, Temporary(err)
	}
	return result, err
}

// ============================================================
// Классификация ошибок
// ============================================================

// RetryableError ошибка, которая сама знает, можно ли её повторять
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable по умолчанию повторяет только явно временные ошибки:
// RetryableError с Retryable()==true или Temporary()==true.
// Неклассифицированные ошибки не повторяются: повтор неизвестной ошибки
// адаптера может продублировать ордер.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return false
}

// RetryIfNotContext повторяет всё, кроме ошибок контекста
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError ошибка, которую не нужно повторять
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string   { return e.Err.Error() }
func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent оборачивает ошибку в PermanentError
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError ошибка, которую нужно повторить
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string   { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error   { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary оборачивает ошибку в TemporaryError
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
