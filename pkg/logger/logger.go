// Package logger provides the process-wide structured logger.
// Call sites tag every line with the emitting component ("client", "modules",
// "collector", ...) so operators can filter one subsystem at a time.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop().Sugar()
)

// Initialize builds the global logger at the given level ("debug", "info",
// "warn", "error"). Safe to call once at startup; before that, logging is a
// no-op.
func Initialize(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	log = zl.Sugar()
	mu.Unlock()
	return nil
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = log.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func withFields(component string, fields map[string]interface{}) *zap.SugaredLogger {
	kv := make([]interface{}, 0, 2+2*len(fields))
	kv = append(kv, "component", component)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return current().With(kv...)
}

// DebugC logs a debug line tagged with a component.
func DebugC(component, msg string) { current().With("component", component).Debug(msg) }

// DebugCF logs a debug line with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Debug(msg)
}

// InfoC logs an info line tagged with a component.
func InfoC(component, msg string) { current().With("component", component).Info(msg) }

// InfoCF logs an info line with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Info(msg)
}

// WarnC logs a warning line tagged with a component.
func WarnC(component, msg string) { current().With("component", component).Warn(msg) }

// WarnCF logs a warning line with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Warn(msg)
}

// ErrorC logs an error line tagged with a component.
func ErrorC(component, msg string) { current().With("component", component).Error(msg) }

// ErrorCF logs an error line with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Error(msg)
}
