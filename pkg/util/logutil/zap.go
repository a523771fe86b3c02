// Package logutil holds zap helpers shared by goroutines and clients.
package logutil

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogPanicAndExit logs the panic reason and stack, then exit the process.
// Should be used with a `defer`.
func LogPanicAndExit(logger *zap.Logger, fields ...zap.Field) {
	if e := recover(); e != nil {
		logger.Fatal("panic and exit", append(fields, zap.Reflect("recover", e))...)
	}
}

// LogPanic logs the panic reason and stack, then panics again.
// Should be used with a `defer`.
func LogPanic(logger *zap.Logger, fields ...zap.Field) {
	if e := recover(); e != nil {
		logger.Error("panic", append(fields, zap.Reflect("recover", e))...)
		panic(e)
	}
}

// IncreaseLevel increases the log level of logger if the level is enabled.
// It is used to quiet third-party clients sharing our logger.
func IncreaseLevel(logger *zap.Logger, level zapcore.Level) *zap.Logger {
	if logger.Core().Enabled(level) {
		return logger.WithOptions(zap.IncreaseLevel(level))
	}
	return logger
}
