package execution

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// TransportConfig параметры HTTP-транспорта для песочниц брокеров
type TransportConfig struct {
	ConnectTimeout      time.Duration // таймаут TCP соединения
	ResponseTimeout     time.Duration // ожидание заголовков ответа
	TLSHandshakeTimeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	KeepAliveInterval   time.Duration
}

// DefaultTransportConfig значения по умолчанию для низкой latency ордеров
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout:      3 * time.Second,
		ResponseTimeout:     5 * time.Second,
		TLSHandshakeTimeout: 3 * time.Second,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// NewTransport создаёт http.Transport с пулом keep-alive соединений.
// Таймаут соединения сокращается до дедлайна контекста запроса,
// чтобы попытка роутера не зависала на dial.
func NewTransport(cfg TransportConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if deadline, ok := ctx.Deadline(); ok {
				if left := time.Until(deadline); left < cfg.ConnectTimeout {
					d := *dialer
					d.Timeout = left
					return d.DialContext(ctx, network, addr)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},

		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}
}
