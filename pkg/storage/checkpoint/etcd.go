// Copyright 2016 TiKV Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"bytes"
	"context"
	"strings"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/util/etcdutil"
	"github.com/AutoMQ/idgen/pkg/util/traceutil"
)

const (
	_keySeparator = "/"
	_pathPrefix   = "id-alloc"
)

// Etcd is a Store keeping the checkpoint under a single etcd key.
// Every write compares the stored value with the last one this store observed,
// so a second writer on the same key makes Save fail rather than move the checkpoint backwards.
type Etcd struct {
	kv   clientv3.KV
	path string
	// prev is the value last read or written by this store, nil if unknown.
	prev []byte

	lg *zap.Logger
}

// EtcdParam is the parameter for creating a new etcd store.
type EtcdParam struct {
	KV       clientv3.KV
	RootPath string // RootPath is the prefix of all keys in etcd.
	Key      string // Key is the unique key to identify the allocator.
}

// NewEtcd creates a new etcd store.
func NewEtcd(param *EtcdParam, lg *zap.Logger) *Etcd {
	e := &Etcd{
		kv:   param.KV,
		path: strings.Join([]string{param.RootPath, _pathPrefix, param.Key}, _keySeparator),
	}
	e.lg = lg.With(zap.String("checkpoint-etcd-path", e.path))
	return e
}

// Path returns the etcd key holding the checkpoint.
func (e *Etcd) Path() string {
	return e.path
}

func (e *Etcd) Exists(ctx context.Context) (bool, error) {
	logger := e.lg.With(traceutil.TraceLogField(ctx))

	kv, err := etcdutil.GetOne(ctx, e.kv, []byte(e.path), logger)
	if err != nil {
		return false, model.Mark(errors.WithMessagef(err, "get key %s", e.path), model.ErrStorage)
	}
	return kv != nil, nil
}

func (e *Etcd) Create(ctx context.Context, lastID uint64) error {
	logger := e.lg.With(zap.Uint64("last-id", lastID), traceutil.TraceLogField(ctx))

	v := Format(lastID)
	defer mcache.Free(v)

	ok, err := etcdutil.CompareAndPut(ctx, e.kv, e.path, v, logger, clientv3.Compare(clientv3.CreateRevision(e.path), "=", 0))
	if err != nil {
		logger.Error("failed to create checkpoint", zap.Error(err))
		return model.Mark(errors.WithMessage(err, "create checkpoint"), model.ErrStorage)
	}
	if !ok {
		return errors.Wrapf(model.ErrCheckpointExists, "create checkpoint %s", e.path)
	}

	e.prev = bytes.Clone(v)
	logger.Info("checkpoint created")
	return nil
}

func (e *Etcd) Load(ctx context.Context) (uint64, error) {
	logger := e.lg.With(traceutil.TraceLogField(ctx))

	kv, err := etcdutil.GetOne(ctx, e.kv, []byte(e.path), logger)
	if err != nil {
		return 0, model.Mark(errors.WithMessagef(err, "get key %s", e.path), model.ErrStorage)
	}
	if kv == nil {
		return 0, errors.Wrapf(model.ErrCheckpointNotFound, "load checkpoint %s", e.path)
	}

	lastID, err := Parse(kv.Value)
	if err != nil {
		logger.Error("malformed checkpoint", zap.ByteString("content", kv.Value), zap.Error(err))
		return 0, errors.WithMessagef(err, "load checkpoint %s", e.path)
	}
	e.prev = kv.Value
	return lastID, nil
}

func (e *Etcd) Save(ctx context.Context, lastID uint64) error {
	logger := e.lg.With(zap.Uint64("last-id", lastID), traceutil.TraceLogField(ctx))

	v := Format(lastID)
	defer mcache.Free(v)

	var cmp clientv3.Cmp
	if e.prev == nil {
		cmp = clientv3.Compare(clientv3.CreateRevision(e.path), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.Value(e.path), "=", string(e.prev))
	}
	ok, err := etcdutil.CompareAndPut(ctx, e.kv, e.path, v, logger, cmp)
	if err != nil {
		logger.Error("failed to save checkpoint", zap.Error(err))
		return model.Mark(errors.WithMessage(err, "save checkpoint"), model.ErrStorage)
	}
	if !ok {
		// A previous Save may have been applied even though its response was lost.
		if ok, rErr := e.holds(ctx, v, logger); rErr == nil && ok {
			e.prev = bytes.Clone(v)
			return nil
		}
		logger.Error("checkpoint modified by another writer", zap.ByteString("expected", e.prev))
		return model.Mark(errors.Wrapf(model.ErrKVTxnFailed, "save checkpoint %s", e.path), model.ErrStorage)
	}

	e.prev = bytes.Clone(v)
	return nil
}

func (e *Etcd) Close() error {
	return nil
}

func (e *Etcd) holds(ctx context.Context, v []byte, logger *zap.Logger) (bool, error) {
	kv, err := etcdutil.GetOne(ctx, e.kv, []byte(e.path), logger)
	if err != nil {
		return false, err
	}
	return kv != nil && bytes.Equal(kv.Value, v), nil
}

// Logger returns the logger of the store.
func (e *Etcd) Logger() *zap.Logger {
	return e.lg
}
