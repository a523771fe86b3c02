package checkpoint

import (
	"context"

	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/util/traceutil"
)

type LogAble interface {
	Store
	Logger() *zap.Logger
}

// Logger is a wrapper of Store that logs all operations.
type Logger struct {
	Store LogAble
}

func (l Logger) Exists(ctx context.Context) (exist bool, err error) {
	exist, err = l.Store.Exists(ctx)

	logger := l.logger()
	if logger.Core().Enabled(zap.DebugLevel) {
		logger = logger.With(traceutil.TraceLogField(ctx))
		logger.Debug("checkpoint exists", zap.Bool("exist", exist), zap.Error(err))
	}
	return
}

func (l Logger) Create(ctx context.Context, lastID uint64) (err error) {
	err = l.Store.Create(ctx, lastID)

	logger := l.logger()
	if logger.Core().Enabled(zap.DebugLevel) {
		logger = logger.With(traceutil.TraceLogField(ctx))
		logger.Debug("checkpoint create", zap.Uint64("last-id", lastID), zap.Error(err))
	}
	return
}

func (l Logger) Load(ctx context.Context) (lastID uint64, err error) {
	lastID, err = l.Store.Load(ctx)

	logger := l.logger()
	if logger.Core().Enabled(zap.DebugLevel) {
		logger = logger.With(traceutil.TraceLogField(ctx))
		logger.Debug("checkpoint load", zap.Uint64("last-id", lastID), zap.Error(err))
	}
	return
}

func (l Logger) Save(ctx context.Context, lastID uint64) (err error) {
	err = l.Store.Save(ctx, lastID)

	logger := l.logger()
	if logger.Core().Enabled(zap.DebugLevel) {
		logger = logger.With(traceutil.TraceLogField(ctx))
		logger.Debug("checkpoint save", zap.Uint64("last-id", lastID), zap.Error(err))
	}
	return
}

func (l Logger) Close() (err error) {
	err = l.Store.Close()

	logger := l.logger()
	if logger.Core().Enabled(zap.DebugLevel) {
		logger.Debug("checkpoint close", zap.Error(err))
	}
	return
}

func (l Logger) logger() *zap.Logger {
	if l.Store.Logger() != nil {
		return l.Store.Logger()
	}
	return zap.NewNop()
}
