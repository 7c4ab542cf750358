package utils

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единая точка настройки логгера для всех компонентов ядра исполнения:
// роутера алертов, движков исполнения, леджера, риск-движка и губернатора.
//
// Функции:
// - InitLogger: создать logger по конфигурации (json/text, уровень, файл)
// - InitGlobalLogger / SetGlobalLogger / GetGlobalLogger: глобальный экземпляр
// - With*: дочерние логгеры с контекстом (компонент, счёт, стратегия, символ)
// - Конструкторы полей предметной области (AccountID, StrategyID, OrderID ...)

// LogConfig конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто = stderr
	Development bool
}

// Logger обёртка над zap.Logger с заранее созданным SugaredLogger
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт новый logger.
// Ошибка открытия файла не фатальна: вывод уходит в stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Development {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.Output != "" && cfg.Output != "stderr" {
		if cfg.Output == "stdout" {
			sink = zapcore.Lock(os.Stdout)
		} else if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sink = zapcore.AddSync(f)
		}
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	z := zap.New(zapcore.NewCore(encoder, sink, level), opts...)
	return &Logger{Logger: z, sugar: z.Sugar()}
}

// NewNopLogger logger без вывода (тесты)
func NewNopLogger() *Logger {
	z := zap.NewNop()
	return &Logger{Logger: z, sugar: z.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

// InitGlobalLogger создаёт logger и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger устанавливает глобальный logger
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный logger, создавая его по умолчанию
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L короткий алиас GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// With возвращает дочерний logger с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	z := l.Logger.With(fields...)
	return &Logger{Logger: z, sugar: z.Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithAccount(id string) *Logger     { return l.With(AccountID(id)) }
func (l *Logger) WithStrategy(id string) *Logger    { return l.With(StrategyID(id)) }
func (l *Logger) WithSymbol(symbol string) *Logger  { return l.With(Symbol(symbol)) }
func (l *Logger) WithAdapter(name string) *Logger   { return l.With(Adapter(name)) }

// Sugar возвращает SugaredLogger для форматированного вывода
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { GetGlobalLogger().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы полей
// ============================================================

func AccountID(id string) zap.Field  { return zap.String("account_id", id) }
func StrategyID(id string) zap.Field { return zap.String("strategy_id", id) }
func OrderID(id string) zap.Field    { return zap.String("order_id", id) }
func FillID(id string) zap.Field     { return zap.String("fill_id", id) }
func Symbol(s string) zap.Field      { return zap.String("symbol", s) }
func Side(s string) zap.Field        { return zap.String("side", s) }
func Mode(m string) zap.Field        { return zap.String("mode", m) }
func Group(g string) zap.Field       { return zap.String("account_group", g) }
func Adapter(name string) zap.Field  { return zap.String("adapter", name) }
func State(s string) zap.Field       { return zap.String("state", s) }
func Rule(r string) zap.Field        { return zap.String("rule", r) }
func Quantity(q int) zap.Field       { return zap.Int("quantity", q) }
func Component(c string) zap.Field   { return zap.String("component", c) }
func RequestID(id string) zap.Field  { return zap.String("request_id", id) }

// Price денежные поля пишутся строкой, чтобы не терять точность decimal
func Price(p decimal.Decimal) zap.Field { return zap.String("price", p.String()) }
func PNL(p decimal.Decimal) zap.Field   { return zap.String("pnl", p.String()) }
func Money(key string, v decimal.Decimal) zap.Field {
	return zap.String(key, v.String())
}

// Latency длительность в миллисекундах
func Latency(d time.Duration) zap.Field {
	return zap.Float64("latency_ms", float64(d.Microseconds())/1000)
}

// Field поле структурированного лога
type Field = zap.Field

// Переэкспорт часто используемых конструкторов zap
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
	Dur     = zap.Duration
)

// fieldsToInterface превращает поля zap в пары ключ/значение для SugaredLogger
func fieldsToInterface(fields []zap.Field) []interface{} {
	enc := zapcore.NewMapObjectEncoder()
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}

// Infow логирует через sugar с парами ключ/значение из полей zap
func (l *Logger) Infow(msg string, fields ...zap.Field) {
	l.sugar.Infow(msg, fieldsToInterface(fields)...)
}
