package id

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/storage/checkpoint"
)

// memStore is an in-memory checkpoint.Store that counts writes (Create and Save) and can be told to fail them.
type memStore struct {
	mu      sync.Mutex
	exist   bool
	raw     []byte
	saveErr error

	writes atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{}
}

func newMemStoreWith(raw string) *memStore {
	return &memStore{exist: true, raw: []byte(raw)}
}

func (m *memStore) Exists(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exist, nil
}

func (m *memStore) Create(ctx context.Context, lastID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exist {
		return model.ErrCheckpointExists
	}
	if err := ctx.Err(); err != nil {
		return model.Mark(err, model.ErrStorage)
	}
	if m.saveErr != nil {
		return model.Mark(m.saveErr, model.ErrStorage)
	}
	m.exist = true
	m.raw = checkpoint.Format(lastID)
	m.writes.Inc()
	return nil
}

func (m *memStore) Load(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exist {
		return 0, model.ErrCheckpointNotFound
	}
	return checkpoint.Parse(m.raw)
}

func (m *memStore) Save(ctx context.Context, lastID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Mark(err, model.ErrStorage)
	}
	if m.saveErr != nil {
		return model.Mark(m.saveErr, model.ErrStorage)
	}
	m.exist = true
	m.raw = checkpoint.Format(lastID)
	m.writes.Inc()
	return nil
}

func (m *memStore) Close() error {
	return nil
}

func (m *memStore) Logger() *zap.Logger {
	return zap.NewNop()
}

func (m *memStore) failSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *memStore) value() uint64 {
	v, err := m.Load(context.Background())
	if err != nil {
		panic(errors.WithMessage(err, "load mem store"))
	}
	return v
}
