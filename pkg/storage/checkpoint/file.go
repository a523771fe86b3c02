package checkpoint

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/util/traceutil"
)

const (
	_fileMode = 0o644
	_dirMode  = 0o755

	_tempPattern = ".checkpoint-*.tmp"
)

// File is a Store backed by a single text file.
// Every Save writes a temporary file next to the target and renames it over the target,
// so a reader sees either the old or the new checkpoint, never a mix.
type File struct {
	path string

	lg *zap.Logger
}

// NewFile creates a file store at path. Nothing is touched on disk until Create or Save.
func NewFile(path string, lg *zap.Logger) *File {
	return &File{
		path: path,
		lg:   lg.With(zap.String("checkpoint-file", path)),
	}
}

func (f *File) Exists(_ context.Context) (bool, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, model.Mark(errors.Wrapf(err, "stat %s", f.path), model.ErrStorage)
	}
	if info.IsDir() {
		return false, errors.Wrapf(model.ErrStorage, "%s is a directory", f.path)
	}
	return true, nil
}

func (f *File) Create(ctx context.Context, lastID uint64) error {
	logger := f.lg.With(zap.Uint64("last-id", lastID), traceutil.TraceLogField(ctx))

	exist, err := f.Exists(ctx)
	if err != nil {
		return errors.WithMessage(err, "create checkpoint")
	}
	if exist {
		return errors.Wrapf(model.ErrCheckpointExists, "create checkpoint %s", f.path)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), _dirMode); err != nil {
		logger.Error("failed to create checkpoint directory", zap.Error(err))
		return model.Mark(errors.Wrap(err, "create checkpoint directory"), model.ErrStorage)
	}
	if err := f.write(ctx, lastID); err != nil {
		logger.Error("failed to create checkpoint", zap.Error(err))
		return errors.WithMessage(err, "create checkpoint")
	}
	logger.Info("checkpoint created")
	return nil
}

func (f *File) Load(ctx context.Context) (uint64, error) {
	logger := f.lg.With(traceutil.TraceLogField(ctx))

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(model.ErrCheckpointNotFound, "load checkpoint %s", f.path)
		}
		logger.Error("failed to read checkpoint", zap.Error(err))
		return 0, model.Mark(errors.Wrapf(err, "read %s", f.path), model.ErrStorage)
	}

	lastID, err := Parse(b)
	if err != nil {
		logger.Error("malformed checkpoint", zap.ByteString("content", b), zap.Error(err))
		return 0, errors.WithMessagef(err, "load checkpoint %s", f.path)
	}
	return lastID, nil
}

func (f *File) Save(ctx context.Context, lastID uint64) error {
	if err := f.write(ctx, lastID); err != nil {
		f.lg.Error("failed to save checkpoint", zap.Uint64("last-id", lastID), traceutil.TraceLogField(ctx), zap.Error(err))
		return errors.WithMessage(err, "save checkpoint")
	}
	return nil
}

func (f *File) Close() error {
	return nil
}

// write replaces the file content with lastID: write temp, fsync, rename, fsync dir.
func (f *File) write(ctx context.Context, lastID uint64) (err error) {
	if err := ctx.Err(); err != nil {
		return model.Mark(errors.Wrap(err, "write checkpoint"), model.ErrStorage)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, _tempPattern)
	if err != nil {
		return model.Mark(errors.Wrapf(err, "create temp file in %s", dir), model.ErrStorage)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	buf := Format(lastID)
	_, err = tmp.Write(buf)
	mcache.Free(buf)
	if err != nil {
		return model.Mark(errors.Wrapf(err, "write %s", tmpPath), model.ErrStorage)
	}
	if err = tmp.Chmod(_fileMode); err != nil {
		return model.Mark(errors.Wrapf(err, "chmod %s", tmpPath), model.ErrStorage)
	}
	if err = tmp.Sync(); err != nil {
		return model.Mark(errors.Wrapf(err, "sync %s", tmpPath), model.ErrStorage)
	}
	if err = tmp.Close(); err != nil {
		return model.Mark(errors.Wrapf(err, "close %s", tmpPath), model.ErrStorage)
	}
	if err = os.Rename(tmpPath, f.path); err != nil {
		return model.Mark(errors.Wrapf(err, "rename %s to %s", tmpPath, f.path), model.ErrStorage)
	}
	if err = syncDir(dir); err != nil {
		return model.Mark(errors.Wrapf(err, "sync dir %s", dir), model.ErrStorage)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

// Logger returns the logger of the store.
func (f *File) Logger() *zap.Logger {
	return f.lg
}
