package obs

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = newJSONLogger(zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	}
	return logger
}

// SetLogger replaces the shared logger and returns a func restoring the previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// InitLogger builds the process logger at the given level ("debug", "info", ...).
func InitLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l := newJSONLogger(zapcore.AddSync(os.Stdout), lvl)
	SetLogger(l)
	return l, nil
}

// FileConfig controls a rotating JSON log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileLogger returns an info-level JSON logger writing to a rotated file.
// The returned close func flushes and closes the underlying file.
func NewFileLogger(cfg FileConfig) (*zap.Logger, func() error, error) {
	if cfg.Path == "" {
		return nil, nil, fmt.Errorf("log file path is required")
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l := newJSONLogger(zapcore.AddSync(rotator), zapcore.InfoLevel)
	closeFn := func() error {
		_ = l.Sync()
		return rotator.Close()
	}
	return l, closeFn, nil
}

func newJSONLogger(ws zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}
