package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/util/traceutil"
)

const (
	_boltOpenTimeout = time.Second // fail fast if another process holds the file lock
)

var (
	_boltBucket = []byte("checkpoint")
	_boltKey    = []byte("last-id")
)

// Bolt is a Store backed by a bbolt database file.
// bbolt takes an exclusive file lock, so a second process opening the same path fails instead of sharing it.
type Bolt struct {
	db   *bolt.DB
	path string

	lg *zap.Logger
}

// OpenBolt opens (or creates) the bbolt database at path.
func OpenBolt(path string, lg *zap.Logger) (*Bolt, error) {
	logger := lg.With(zap.String("checkpoint-bolt", path))

	if err := os.MkdirAll(filepath.Dir(path), _dirMode); err != nil {
		return nil, model.Mark(errors.Wrap(err, "create bolt directory"), model.ErrStorage)
	}
	db, err := bolt.Open(path, _fileMode, &bolt.Options{Timeout: _boltOpenTimeout})
	if err != nil {
		logger.Error("failed to open bolt", zap.Error(err))
		return nil, model.Mark(errors.Wrapf(err, "open bolt %s", path), model.ErrStorage)
	}
	return &Bolt{
		db:   db,
		path: path,
		lg:   logger,
	}, nil
}

func (b *Bolt) Exists(_ context.Context) (exist bool, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(_boltBucket)
		exist = bucket != nil && bucket.Get(_boltKey) != nil
		return nil
	})
	if err != nil {
		return false, model.Mark(errors.Wrap(err, "view bolt"), model.ErrStorage)
	}
	return
}

func (b *Bolt) Create(ctx context.Context, lastID uint64) error {
	logger := b.lg.With(zap.Uint64("last-id", lastID), traceutil.TraceLogField(ctx))

	if err := ctx.Err(); err != nil {
		return model.Mark(errors.Wrap(err, "create checkpoint"), model.ErrStorage)
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(_boltBucket)
		if err != nil {
			return errors.Wrap(err, "create bucket")
		}
		if bucket.Get(_boltKey) != nil {
			return errors.Wrapf(model.ErrCheckpointExists, "create checkpoint %s", b.path)
		}
		return put(bucket, lastID)
	})
	if errors.Is(err, model.ErrCheckpointExists) {
		return err
	}
	if err != nil {
		logger.Error("failed to create checkpoint", zap.Error(err))
		return model.Mark(errors.WithMessage(err, "create checkpoint"), model.ErrStorage)
	}
	logger.Info("checkpoint created")
	return nil
}

func (b *Bolt) Load(ctx context.Context) (lastID uint64, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(_boltBucket)
		if bucket == nil {
			return errors.Wrapf(model.ErrCheckpointNotFound, "load checkpoint %s", b.path)
		}
		v := bucket.Get(_boltKey)
		if v == nil {
			return errors.Wrapf(model.ErrCheckpointNotFound, "load checkpoint %s", b.path)
		}
		// v is only valid inside the transaction, Parse does not keep it.
		lastID, err = Parse(v)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrCorruptState) {
			b.lg.Error("malformed checkpoint", traceutil.TraceLogField(ctx), zap.Error(err))
		}
		return 0, errors.WithMessage(err, "load checkpoint")
	}
	return lastID, nil
}

func (b *Bolt) Save(ctx context.Context, lastID uint64) error {
	if err := ctx.Err(); err != nil {
		return model.Mark(errors.Wrap(err, "save checkpoint"), model.ErrStorage)
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(_boltBucket)
		if err != nil {
			return errors.Wrap(err, "create bucket")
		}
		return put(bucket, lastID)
	})
	if err != nil {
		b.lg.Error("failed to save checkpoint", zap.Uint64("last-id", lastID), traceutil.TraceLogField(ctx), zap.Error(err))
		return model.Mark(errors.WithMessage(err, "save checkpoint"), model.ErrStorage)
	}
	return nil
}

func (b *Bolt) Close() error {
	if err := b.db.Close(); err != nil {
		return model.Mark(errors.Wrapf(err, "close bolt %s", b.path), model.ErrStorage)
	}
	return nil
}

func put(bucket *bolt.Bucket, lastID uint64) error {
	// bbolt keeps a reference to the value until the transaction commits, so copy it out of mcache.
	buf := Format(lastID)
	v := make([]byte, len(buf))
	copy(v, buf)
	mcache.Free(buf)

	return errors.Wrap(bucket.Put(_boltKey, v), "put checkpoint")
}

// Logger returns the logger of the store.
func (b *Bolt) Logger() *zap.Logger {
	return b.lg
}
