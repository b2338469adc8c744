package logger

import (
	"os"
	"sync"
	"time"

	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is the contracts.Logger implementation backed by Uber's zap.
type ZapLogger struct {
	mu     sync.RWMutex
	logger *zap.Logger
	level  zap.AtomicLevel
}

// NewZapLogger creates a production zap logger writing JSON to stderr.
func NewZapLogger() contracts.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return &ZapLogger{logger: newCore(level, zapcore.Lock(os.Stderr)), level: level}
}

// NewDevelopmentLogger creates a console-encoded zap logger, used by the command line host.
func NewDevelopmentLogger() contracts.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return &ZapLogger{logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), level: level}
}

// NewNopLogger discards everything. Tests use it to keep output quiet.
func NewNopLogger() contracts.Logger {
	return &ZapLogger{logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

func newCore(level zap.AtomicLevel, sink zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.current().Info(msg, toZap(fields)...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.current().Error(msg, toZap(fields)...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.current().Debug(msg, toZap(fields)...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.current().Warn(msg, toZap(fields)...)
}

// Fatal logs a message at the FATAL level and terminates the application
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.current().Fatal(msg, toZap(fields)...)
}

// Field returns a new field builder
func (z *ZapLogger) Field() contracts.Field {
	return zapField{}
}

// SetLevel sets the logging level
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.SetLevel(zapLevel(level))
}

// SetDestination switches the output between stderr and a file. A file that cannot be opened
// leaves the current destination in place.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	var sink zapcore.WriteSyncer

	switch dest {
	case contracts.FileLog:
		if len(filePath) == 0 || filePath[0] == "" {
			z.Warn("file log destination requested without a path")
			return
		}
		f, err := os.OpenFile(filePath[0], os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			z.Error("failed to open log file", z.Field().String("path", filePath[0]), z.Field().Error("error", err))
			return
		}
		sink = zapcore.AddSync(f)
	default:
		sink = zapcore.Lock(os.Stderr)
	}

	z.mu.Lock()
	_ = z.logger.Sync()
	z.logger = newCore(z.level, sink)
	z.mu.Unlock()
}

func (z *ZapLogger) current() *zap.Logger {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.logger
}

func zapLevel(level contracts.LogLevel) zapcore.Level {
	switch level {
	case contracts.DebugLevel:
		return zapcore.DebugLevel
	case contracts.WarnLevel:
		return zapcore.WarnLevel
	case contracts.ErrorLevel:
		return zapcore.ErrorLevel
	case contracts.FatalLevel:
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

func toZap(fields []contracts.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if f, ok := field.(zapField); ok && f.field.Key != "" {
			out = append(out, f.field)
		}
	}
	return out
}

// zapField implements contracts.Field
type zapField struct {
	field zap.Field
}

func (f zapField) Bool(key string, val bool) contracts.Field {
	return zapField{zap.Bool(key, val)}
}

func (f zapField) Int(key string, val int) contracts.Field {
	return zapField{zap.Int(key, val)}
}

func (f zapField) Float64(key string, val float64) contracts.Field {
	return zapField{zap.Float64(key, val)}
}

func (f zapField) String(key string, val string) contracts.Field {
	return zapField{zap.String(key, val)}
}

func (f zapField) Time(key string, val time.Time) contracts.Field {
	return zapField{zap.Time(key, val)}
}

func (f zapField) Int64(key string, val int64) contracts.Field {
	return zapField{zap.Int64(key, val)}
}

func (f zapField) Error(key string, val error) contracts.Field {
	return zapField{zap.NamedError(key, val)}
}

func (f zapField) Uint64(key string, val uint64) contracts.Field {
	return zapField{zap.Uint64(key, val)}
}

func (f zapField) Uint32(key string, val uint32) contracts.Field {
	return zapField{zap.Uint32(key, val)}
}

func (f zapField) Uint8(key string, val uint8) contracts.Field {
	return zapField{zap.Uint8(key, val)}
}
