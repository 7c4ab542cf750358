package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"tradecore/internal/models"
	"tradecore/pkg/retry"
)

// PriceSource источник референсных цен для симулятора и mark-to-market
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// ============================================================
// StaticSource - цены, заданные вручную
// ============================================================

// StaticSource хранит последние выставленные цены (dev-режим, тесты, ручная переоценка)
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticSource создаёт источник с начальными ценами
func NewStaticSource(initial map[string]decimal.Decimal) *StaticSource {
	s := &StaticSource{prices: make(map[string]decimal.Decimal, len(initial))}
	for k, v := range initial {
		s.prices[k] = v
	}
	return s
}

// Set устанавливает цену символа
func (s *StaticSource) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

// Price возвращает цену или ErrPriceUnavailable
func (s *StaticSource) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	p, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrPriceUnavailable, symbol)
	}
	return p, nil
}

// ============================================================
// YahooSource - Yahoo Finance через finance-go
// ============================================================

// QuoteFunc сигнатура quote.Get, подменяется в тестах
type QuoteFunc func(symbol string) (decimal.Decimal, error)

// YahooSource котировки Yahoo Finance (задержка до 15 минут для фьючерсов)
type YahooSource struct {
	fetch QuoteFunc
	retry retry.Config
}

// NewYahooSource создаёт источник поверх finance-go
func NewYahooSource() *YahooSource {
	cfg := retry.NetworkConfig()
	cfg.RetryIf = retryQuote
	return &YahooSource{fetch: yahooQuote, retry: cfg}
}

// retryQuote сетевые сбои повторяются; отсутствие цены и отмена - нет
func retryQuote(err error) bool {
	return retry.RetryIfNotContext(err) && !errors.Is(err, models.ErrPriceUnavailable)
}

func yahooQuote(symbol string) (decimal.Decimal, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return decimal.Zero, fmt.Errorf("%w: yahoo has no price for %s", models.ErrPriceUnavailable, symbol)
	}
	return decimal.NewFromFloat(q.RegularMarketPrice), nil
}

// Price возвращает последнюю цену; тикер переводится в формат Yahoo
func (y *YahooSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	yahoo := YahooSymbol(symbol)
	return retry.DoWithResult(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return y.fetch(yahoo)
	}, y.retry)
}

// ============================================================
// CachedSource - ristretto-кеш перед любым источником
// ============================================================

// CachedSource кеширует цены на ttl; промахи идут в upstream
type CachedSource struct {
	upstream PriceSource
	cache    *ristretto.Cache
	ttl      time.Duration
}

// NewCachedSource создаёт кеш на maxItems символов
func NewCachedSource(upstream PriceSource, maxItems int64, ttl time.Duration) (*CachedSource, error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedSource{upstream: upstream, cache: c, ttl: ttl}, nil
}

// Price отдаёт цену из кеша или запрашивает upstream
func (c *CachedSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if v, ok := c.cache.Get(symbol); ok {
		if p, ok := v.(decimal.Decimal); ok {
			return p, nil
		}
	}
	p, err := c.upstream.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.SetWithTTL(symbol, p, 1, c.ttl)
	return p, nil
}

// Invalidate удаляет цену символа из кеша
func (c *CachedSource) Invalidate(symbol string) {
	c.cache.Del(symbol)
}

// Wait дожидается применения буферизованных записей (ristretto пишет асинхронно)
func (c *CachedSource) Wait() {
	c.cache.Wait()
}

// Close освобождает ресурсы кеша
func (c *CachedSource) Close() {
	c.cache.Close()
}

// ============================================================
// ChainSource - первый успешный источник
// ============================================================

// ChainSource опрашивает источники по порядку, например ручные цены, затем Yahoo
type ChainSource []PriceSource

// Price первая успешная цена
func (c ChainSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var lastErr error = fmt.Errorf("%w: %s", models.ErrPriceUnavailable, symbol)
	for _, src := range c {
		p, err := src.Price(ctx, symbol)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return decimal.Zero, lastErr
}
