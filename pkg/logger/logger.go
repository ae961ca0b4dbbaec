package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Until Init runs, messages go to stderr so startup failures are visible.
var (
	mu     sync.RWMutex
	base   = newFallback(zapcore.Lock(os.Stderr))
	global = base.Sugar()
)

func newFallback(w zapcore.WriteSyncer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, w, zapcore.InfoLevel), zap.AddCaller(), zap.AddCallerSkip(1))
}

// Init replaces the global logger. ENV=dev gets a colored console encoder,
// anything else gets JSON.
func Init(env, level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	var cfg zap.Config
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set installs l as the global logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	global = l.Sugar()
}

// L returns the structured logger for call sites that attach fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1))
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Sync() {
	_ = sugar().Sync()
}

// Convenience functions
func Info(format string, v ...interface{}) {
	sugar().Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	sugar().Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	sugar().Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	sugar().Debugf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	sugar().Errorf(format, v...)
	Sync()
	os.Exit(1)
}
