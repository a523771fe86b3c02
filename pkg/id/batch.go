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

package id

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/storage/checkpoint"
	"github.com/AutoMQ/idgen/pkg/util/traceutil"
)

// BatchAllocator serves ids from an in-memory batch and reserves the next batch in a checkpoint store.
//
// The cache is the run of ids base, base+1, ..., base+left-1. Whenever left > 0 the last cached id equals
// checkpoint, and the checkpoint is persisted before any id of a new batch is handed out. So a crash can
// only waste reserved ids, never issue one twice.
type BatchAllocator struct {
	mu          sync.Mutex
	base        uint64
	left        uint64
	checkpoint  uint64 // last persisted checkpoint
	initialized bool

	store checkpoint.Store
	step  uint64

	allocated    atomic.Uint64
	reservations atomic.Uint64

	lg *zap.Logger
}

// BatchAllocatorParam is the parameter for creating a new batch allocator.
type BatchAllocatorParam struct {
	Store checkpoint.Store
	Step  uint64 // Step is the number of ids reserved per durable write. If Step is 0, it will be set to DefaultBatchSize.
}

// Stats is a snapshot of allocator counters.
type Stats struct {
	// Allocated is the number of ids handed out since the allocator was created.
	Allocated uint64
	// Reservations is the number of checkpoints persisted since the allocator was created.
	Reservations uint64
}

// NewBatchAllocator creates an UNINITIALIZED batch allocator. Call Init before allocating.
func NewBatchAllocator(param *BatchAllocatorParam, lg *zap.Logger) *BatchAllocator {
	a := &BatchAllocator{
		store: param.Store,
		step:  param.Step,
	}
	if a.step == 0 {
		a.step = DefaultBatchSize
	}
	a.lg = lg.With(zap.Uint64("id-batch-size", a.step))
	return a
}

// Init loads the checkpoint and reserves the first batch. Either way it costs one durable write:
// an empty store is created already holding the first batch.
func (a *BatchAllocator) Init(ctx context.Context) error {
	logger := a.lg.With(traceutil.TraceLogField(ctx))

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return model.ErrAllocatorInitialized
	}

	exist, err := a.store.Exists(ctx)
	if err != nil {
		return errors.WithMessage(err, "check checkpoint")
	}

	var lastID uint64
	if exist {
		lastID, err = a.store.Load(ctx)
		if err != nil {
			return errors.WithMessage(err, "load checkpoint")
		}
		a.checkpoint = lastID
		if err := a.growLocked(ctx, a.step); err != nil {
			return errors.WithMessage(err, "reserve first batch")
		}
	} else {
		logger.Info("no checkpoint found, start from zero")
		// the store is created holding the first batch
		if err := a.store.Create(ctx, a.step); err != nil {
			return errors.WithMessage(err, "create checkpoint")
		}
		a.base = 1
		a.left = a.step
		a.checkpoint = a.step
		a.reservations.Inc()
	}
	a.initialized = true

	logger.Info("id allocator initialized", zap.Uint64("loaded-checkpoint", lastID), zap.Uint64("checkpoint", a.checkpoint))
	return nil
}

// Alloc returns an id that has never been returned before, by this allocator or any earlier one on the same store.
// The context is only checked before the allocator is locked; a reservation in progress is never abandoned.
func (a *BatchAllocator) Alloc(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.WithMessage(err, "alloc id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return 0, model.ErrAllocatorNotInitialized
	}

	if a.left == 0 {
		if err := a.growLocked(ctx, a.step); err != nil {
			return 0, errors.WithMessage(err, "reserve batch")
		}
	}

	id := a.base
	a.base++
	a.left--
	a.allocated.Inc()
	return id, nil
}

// AllocN allocates n increasing, continuous ids. It reserves at most once, so either all n ids are returned or none.
// n larger than MaxAllocN fails with model.ErrTooManyIDs before anything is reserved.
func (a *BatchAllocator) AllocN(ctx context.Context, n int) ([]uint64, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > MaxAllocN {
		return nil, errors.Wrapf(model.ErrTooManyIDs, "alloc %d ids, at most %d", n, MaxAllocN)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithMessage(err, "alloc ids")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, model.ErrAllocatorNotInitialized
	}

	ids := make([]uint64, 0, n)
	want := uint64(n)
	if want > a.left {
		missing := want - a.left
		if missing > math.MaxUint64-a.step {
			return nil, errors.Wrapf(model.ErrIDExhausted, "alloc %d ids", n)
		}
		// round up to whole batches
		growth := (missing + a.step - 1) / a.step * a.step
		if err := a.growLocked(ctx, growth); err != nil {
			return nil, errors.WithMessagef(err, "reserve %d ids", growth)
		}
	}

	for i := uint64(0); i < want; i++ {
		ids = append(ids, a.base)
		a.base++
	}
	a.left -= want
	a.allocated.Add(want)
	return ids, nil
}

// Checkpoint returns the last checkpoint persisted by the allocator.
func (a *BatchAllocator) Checkpoint() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkpoint
}

// Stats returns the allocator counters. It does not block on a reservation in progress.
func (a *BatchAllocator) Stats() Stats {
	return Stats{
		Allocated:    a.allocated.Load(),
		Reservations: a.reservations.Load(),
	}
}

// Logger returns the logger of the allocator.
func (a *BatchAllocator) Logger() *zap.Logger {
	return a.lg
}

// growLocked extends the cache by growth ids following the checkpoint.
// The new checkpoint is persisted first; on failure the allocator state is left untouched.
func (a *BatchAllocator) growLocked(ctx context.Context, growth uint64) error {
	if a.checkpoint > math.MaxUint64-growth {
		return errors.Wrapf(model.ErrIDExhausted, "checkpoint %d, growth %d", a.checkpoint, growth)
	}
	end := a.checkpoint + growth

	if err := a.store.Save(ctx, end); err != nil {
		a.lg.Error("failed to persist checkpoint", zap.Uint64("checkpoint", a.checkpoint), zap.Uint64("new-checkpoint", end),
			traceutil.TraceLogField(ctx), zap.Error(err))
		return errors.WithMessagef(err, "persist checkpoint %d", end)
	}

	if a.left == 0 {
		a.base = a.checkpoint + 1
	}
	a.left += growth
	a.checkpoint = end
	a.reservations.Inc()

	if logger := a.lg; logger.Core().Enabled(zap.DebugLevel) {
		logger.Debug("reserve ids", zap.Uint64("from", a.base), zap.Uint64("to", end), traceutil.TraceLogField(ctx))
	}
	return nil
}
