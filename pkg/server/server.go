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

package server

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AutoMQ/idgen/pkg/id"
	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/server/config"
	"github.com/AutoMQ/idgen/pkg/storage/checkpoint"
	"github.com/AutoMQ/idgen/pkg/util/logutil"
)

const (
	_etcdClientLogLevel = zapcore.WarnLevel // etcd client is chatty at info level
)

// Server owns a checkpoint store and the allocator serving ids from it
type Server struct {
	mu      sync.Mutex
	started bool // server status, true for started

	cfg *config.Config // Server configuration
	ctx context.Context

	client    *clientv3.Client // etcd client, nil unless the etcd store is used
	store     checkpoint.Store
	allocator *id.BatchAllocator

	lg *zap.Logger // logger
}

// NewServer creates the UNINITIALIZED server with given configuration.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil || cfg.Storage == nil || cfg.Allocator == nil {
		return nil, errors.New("incomplete configuration")
	}
	s := &Server{
		cfg: cfg,
		ctx: ctx,
		lg:  logger.With(zap.String("storage-type", cfg.Storage.Type)),
	}
	return s, nil
}

// Start opens the checkpoint store and initializes the allocator.
// If it fails, everything opened is released and Start may be called again.
func (s *Server) Start() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return model.ErrServerStarted
	}

	defer func() {
		if err != nil {
			s.closeLocked()
		}
	}()

	store, err := s.openStore()
	if err != nil {
		return errors.WithMessage(err, "open checkpoint store")
	}
	s.store = store

	s.allocator = id.NewBatchAllocator(&id.BatchAllocatorParam{
		Store: checkpoint.Logger{Store: store},
		Step:  s.cfg.Allocator.BatchSize,
	}, s.lg)
	if err := s.allocator.Init(s.ctx); err != nil {
		return errors.WithMessage(err, "init allocator")
	}

	s.started = true
	s.lg.Info("server started", zap.Uint64("checkpoint", s.allocator.Checkpoint()))
	return nil
}

func (s *Server) openStore() (checkpoint.LogAble, error) {
	cfg := s.cfg.Storage
	switch cfg.Type {
	case config.StorageTypeFile:
		return checkpoint.NewFile(cfg.Path, s.lg), nil
	case config.StorageTypeBolt:
		return checkpoint.OpenBolt(cfg.Path, s.lg)
	case config.StorageTypeEtcd:
		if err := s.startEtcdClient(); err != nil {
			return nil, errors.WithMessage(err, "start etcd client")
		}
		return checkpoint.NewEtcd(&checkpoint.EtcdParam{
			KV:       s.client,
			RootPath: cfg.Etcd.RootPath,
			Key:      cfg.Etcd.Key,
		}, s.lg), nil
	default:
		return nil, errors.Errorf("unknown storage type `%s`", cfg.Type)
	}
}

func (s *Server) startEtcdClient() error {
	endpoints := s.cfg.Storage.Etcd.Endpoints
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: s.cfg.Storage.Etcd.DialTimeout,
		Context:     s.ctx,
		Logger: logutil.IncreaseLevel(s.lg, _etcdClientLogLevel).
			With(zap.Namespace("etcd-client"), zap.Strings("endpoints", endpoints)),
	})
	if err != nil {
		s.lg.Error("failed to connect to etcd", zap.Strings("endpoints", endpoints), zap.Error(err))
		return model.Mark(errors.Wrap(err, "new client"), model.ErrStorage)
	}
	s.lg.Info("new etcd client", zap.Strings("endpoints", endpoints))
	s.client = client
	return nil
}

// Allocator returns the allocator of a started server.
func (s *Server) Allocator() (id.Allocator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, model.ErrServerNotStarted
	}
	return id.Logger{LogAble: s.allocator}, nil
}

// Stats returns the allocator counters of a started server.
func (s *Server) Stats() id.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocator == nil {
		return id.Stats{}
	}
	return s.allocator.Stats()
}

// Close releases the store and the etcd client. It is safe to call Close more than once.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.closeLocked()

	s.lg.Info("server closed")
}

func (s *Server) closeLocked() {
	s.started = false
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.lg.Error("failed to close checkpoint store", zap.Error(err))
		}
		s.store = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.lg.Error("failed to close etcd client", zap.Error(err))
		}
		s.client = nil
	}
}
