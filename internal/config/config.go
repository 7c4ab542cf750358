package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tradecore/internal/models"
	"tradecore/pkg/crypto"
)

// Драйверы хранилища
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Engine   EngineConfig
	Governor models.GovernorPolicy
	Kafka    KafkaConfig
	Market   MarketConfig
	Logging  LoggingConfig
	Accounts AccountsConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	UseHTTPS        bool
	CertFile        string
	KeyFile         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig - настройки хранилища. memory держит всё в памяти процесса.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	Path     string // файл sqlite

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	APITokenHash   string // bcrypt; пусто - API без авторизации
	EncryptionKey  string // ключ AES-256 для секретов песочниц
	DebugUsername  string
	DebugPassword  string
	AllowedOrigins []string
}

// EngineConfig - параметры симулятора, роутера и риск-движка
type EngineConfig struct {
	SimulatorLatency  time.Duration
	BaseSlippage      decimal.Decimal
	MaxSlippage       decimal.Decimal
	SizeImpactDivisor int64

	AttemptTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
	PaperBalance   decimal.Decimal

	RiskTickInterval    time.Duration
	SessionTimezone     string
	SessionRolloverHour int
	FlattenTimeout      time.Duration

	AlertRateLimit float64 // алертов в секунду на IP; 0 = без ограничения
	AlertBurst     float64
	EventHistory   int // событий в буфере для докачки после переподключения
}

// KafkaConfig - необязательные приём алертов и публикация событий
type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
	EventTopic string
	GroupID    string
}

// AlertsEnabled true, если задан топик алертов
func (k KafkaConfig) AlertsEnabled() bool {
	return len(k.Brokers) > 0 && k.AlertTopic != ""
}

// EventsEnabled true, если задан топик событий
func (k KafkaConfig) EventsEnabled() bool {
	return len(k.Brokers) > 0 && k.EventTopic != ""
}

// MarketConfig - источники референсных цен
type MarketConfig struct {
	YahooEnabled bool
	CacheTTL     time.Duration
	CacheSize    int64
	StaticPrices map[string]decimal.Decimal
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из .env и переменных окружения
func Load() (*Config, error) {
	// .env необязателен: переменные окружения имеют приоритет
	_ = godotenv.Load()

	prices, err := parsePrices(getEnv("STATIC_PRICES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:        getEnvAsBool("USE_HTTPS", false),
			CertFile:        getEnv("CERT_FILE", ""),
			KeyFile:         getEnv("KEY_FILE", ""),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverMemory)),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "tradecore"),
			User:            getEnv("DB_USER", "tradecore"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			Path:            getEnv("DB_PATH", "tradecore.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			APITokenHash:   getEnv("API_TOKEN_HASH", ""),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			DebugUsername:  getEnv("DEBUG_USERNAME", ""),
			DebugPassword:  getEnv("DEBUG_PASSWORD", ""),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Engine: EngineConfig{
			SimulatorLatency:  getEnvAsDuration("SIM_LATENCY", 50*time.Millisecond),
			BaseSlippage:      getEnvAsDecimal("SIM_BASE_SLIPPAGE", decimal.RequireFromString("0.0001")),
			MaxSlippage:       getEnvAsDecimal("SIM_MAX_SLIPPAGE", decimal.RequireFromString("0.001")),
			SizeImpactDivisor: int64(getEnvAsInt("SIM_SIZE_IMPACT_DIVISOR", 1000)),

			AttemptTimeout: getEnvAsDuration("ADAPTER_TIMEOUT", 5*time.Second),
			RetryAttempts:  getEnvAsInt("ADAPTER_RETRY_ATTEMPTS", 2),
			RetryBackoff:   getEnvAsDuration("ADAPTER_RETRY_BACKOFF", 500*time.Millisecond),
			PaperBalance:   getEnvAsDecimal("PAPER_BALANCE", decimal.NewFromInt(100000)),

			RiskTickInterval:    getEnvAsDuration("RISK_TICK_INTERVAL", 5*time.Second),
			SessionTimezone:     getEnv("SESSION_TIMEZONE", "America/Chicago"),
			SessionRolloverHour: getEnvAsInt("SESSION_ROLLOVER_HOUR", 17),
			FlattenTimeout:      getEnvAsDuration("FLATTEN_TIMEOUT", 30*time.Second),

			AlertRateLimit: getEnvAsFloat("ALERT_RATE_LIMIT", 10),
			AlertBurst:     getEnvAsFloat("ALERT_RATE_BURST", 20),
			EventHistory:   getEnvAsInt("EVENT_HISTORY", 1024),
		},
		Governor: models.GovernorPolicy{
			SetSize:       getEnvAsInt("GOVERNOR_SET_SIZE", 20),
			MinWinRate:    getEnvAsFloat("GOVERNOR_MIN_WIN_RATE", 55),
			FailsToDemote: getEnvAsInt("GOVERNOR_FAILS_TO_DEMOTE", 2),
			WinsToPromote: getEnvAsInt("GOVERNOR_WINS_TO_PROMOTE", 2),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS", nil),
			AlertTopic: getEnv("KAFKA_ALERT_TOPIC", ""),
			EventTopic: getEnv("KAFKA_EVENT_TOPIC", ""),
			GroupID:    getEnv("KAFKA_GROUP_ID", "tradecore"),
		},
		Market: MarketConfig{
			YahooEnabled: getEnvAsBool("YAHOO_ENABLED", false),
			CacheTTL:     getEnvAsDuration("PRICE_CACHE_TTL", 15*time.Second),
			CacheSize:    int64(getEnvAsInt("PRICE_CACHE_SIZE", 10000)),
			StaticPrices: prices,
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", ""),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	accounts, err := LoadAccounts(getEnv("ACCOUNTS_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.Accounts = *accounts

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет всю конфигурацию
func (c *Config) Validate() error {
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateRanges(); err != nil {
		return err
	}
	return c.Accounts.Validate()
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.APITokenHash != "" && !strings.HasPrefix(c.Security.APITokenHash, "$2") {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash (use `tradecore hash-token`)")
	}

	// ключ нужен только для зашифрованных секретов песочниц
	if c.Security.EncryptionKey != "" {
		if _, err := crypto.ParseKey(c.Security.EncryptionKey); err != nil {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (raw, hex or base64) for AES-256: %w", err)
		}
	}

	if (c.Security.DebugUsername == "") != (c.Security.DebugPassword == "") {
		return fmt.Errorf("DEBUG_USERNAME and DEBUG_PASSWORD must be set together")
	}
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of memory, postgres, sqlite, got %q", c.Database.Driver)
	}

	e := c.Engine
	if e.RetryAttempts < 1 || e.RetryAttempts > 10 {
		return fmt.Errorf("ADAPTER_RETRY_ATTEMPTS must be between 1 and 10, got %d", e.RetryAttempts)
	}
	if e.AttemptTimeout <= 0 {
		return fmt.Errorf("ADAPTER_TIMEOUT must be positive, got %v", e.AttemptTimeout)
	}
	if e.SimulatorLatency < 0 {
		return fmt.Errorf("SIM_LATENCY cannot be negative, got %v", e.SimulatorLatency)
	}
	if e.BaseSlippage.IsNegative() || e.MaxSlippage.LessThan(e.BaseSlippage) {
		return fmt.Errorf("SIM_MAX_SLIPPAGE must be >= SIM_BASE_SLIPPAGE >= 0")
	}
	if e.SizeImpactDivisor <= 0 {
		return fmt.Errorf("SIM_SIZE_IMPACT_DIVISOR must be positive, got %d", e.SizeImpactDivisor)
	}
	if !e.PaperBalance.IsPositive() {
		return fmt.Errorf("PAPER_BALANCE must be positive, got %s", e.PaperBalance)
	}
	if e.RiskTickInterval < 0 {
		return fmt.Errorf("RISK_TICK_INTERVAL cannot be negative, got %v", e.RiskTickInterval)
	}
	if e.SessionRolloverHour < 0 || e.SessionRolloverHour > 23 {
		return fmt.Errorf("SESSION_ROLLOVER_HOUR must be between 0 and 23, got %d", e.SessionRolloverHour)
	}
	if _, err := time.LoadLocation(e.SessionTimezone); err != nil {
		return fmt.Errorf("SESSION_TIMEZONE %q: %w", e.SessionTimezone, err)
	}
	if e.AlertRateLimit < 0 {
		return fmt.Errorf("ALERT_RATE_LIMIT cannot be negative, got %v", e.AlertRateLimit)
	}

	g := c.Governor
	if g.SetSize < 1 {
		return fmt.Errorf("GOVERNOR_SET_SIZE must be positive, got %d", g.SetSize)
	}
	if g.MinWinRate < 0 || g.MinWinRate > 100 {
		return fmt.Errorf("GOVERNOR_MIN_WIN_RATE must be between 0 and 100, got %v", g.MinWinRate)
	}
	if g.FailsToDemote < 1 || g.WinsToPromote < 1 {
		return fmt.Errorf("GOVERNOR_FAILS_TO_DEMOTE and GOVERNOR_WINS_TO_PROMOTE must be positive")
	}

	if c.Market.CacheSize <= 0 {
		return fmt.Errorf("PRICE_CACHE_SIZE must be positive, got %d", c.Market.CacheSize)
	}
	return nil
}

// Persistent true, если состояние пишется в БД
func (d DatabaseConfig) Persistent() bool {
	return d.Driver == DriverPostgres || d.Driver == DriverSQLite
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// parsePrices разбирает "ES=5000,NQ=18000.25"
func parsePrices(raw string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		symbol, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("STATIC_PRICES: entry %q must be SYMBOL=PRICE", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("STATIC_PRICES: invalid price for %s", symbol)
		}
		out[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	return out, nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
