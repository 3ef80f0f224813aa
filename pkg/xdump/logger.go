package xdump

import (
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogOff
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogInfo:
		return zapcore.InfoLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	default:
		// above every level zap emits
		return zapcore.FatalLevel + 1
	}
}

type Fields map[string]interface{}

// Logger is a leveled printf logger backed by a zap console core.
// Derived loggers share the level of their parent.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	mu    *sync.Mutex
	cur   *LogLevel
}

var (
	globalLogger     *Logger
	globalLoggerMu   sync.RWMutex
	globalLoggerOnce sync.Once
)

func initGlobalLogger() {
	globalLoggerOnce.Do(func() {
		config := GetGlobalConfig()
		level := ParseLogLevel(config.LogLevel)
		globalLogger = NewLogger(os.Stderr, level)
	})
}

func init() {
	initGlobalLogger()
}

// ParseLogLevel maps a configuration level name to a LogLevel; unknown
// names map to LogInfo.
func ParseLogLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LogDebug
	case "info":
		return LogInfo
	case "warn":
		return LogWarn
	case "error":
		return LogError
	case "off":
		return LogOff
	default:
		return LogInfo
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// NewLogger writes "2006-01-02 15:04:05 [LEVEL] message {fields}" lines to w.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	if w == nil {
		w = io.Discard
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	atom := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), atom)
	cur := level
	return &Logger{
		sugar: zap.New(core).Sugar(),
		level: atom,
		mu:    &sync.Mutex{},
		cur:   &cur,
	}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return NewLogger(io.Discard, LogOff)
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.cur = level
	l.level.SetLevel(level.zapLevel())
}

func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.cur
}

func (l *Logger) IsDebugMode() bool {
	return l.Level() == LogDebug
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.sugar.With(key, value))
}

func (l *Logger) WithFields(fields Fields) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.derive(l.sugar.With(args...))
}

func (l *Logger) derive(s *zap.SugaredLogger) *Logger {
	return &Logger{sugar: s, level: l.level, mu: l.mu, cur: l.cur}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Global logging functions
func SetLogger(logger *Logger) {
	initGlobalLogger()
	globalLoggerMu.Lock()
	globalLogger = logger
	globalLoggerMu.Unlock()
}

func GetLogger() *Logger {
	initGlobalLogger()
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

func WithFields(fields Fields) *Logger {
	return GetLogger().WithFields(fields)
}

// UpdateLoggerFromConfig updates the global logger based on the current global configuration
func UpdateLoggerFromConfig() {
	config := GetGlobalConfig()
	GetLogger().SetLevel(ParseLogLevel(config.LogLevel))
}
