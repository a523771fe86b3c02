package main

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/id"
	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/storage/checkpoint"
)

type recordAllocator struct {
	id.Allocator
	issued cmap.ConcurrentMap[uint64, struct{}]
}

func (r *recordAllocator) Alloc(ctx context.Context) (uint64, error) {
	v, err := r.Allocator.Alloc(ctx)
	if err == nil && !r.issued.SetIfAbsent(v, struct{}{}) {
		return 0, errors.Errorf("duplicate id %d", v)
	}
	return v, err
}

func newTestAllocator(t *testing.T, step uint64) *id.BatchAllocator {
	allocator := id.NewBatchAllocator(&id.BatchAllocatorParam{
		Store: checkpoint.NewFile(filepath.Join(t.TempDir(), "node.id"), zap.NewNop()),
		Step:  step,
	}, zap.NewNop())
	require.NoError(t, allocator.Init(context.Background()))
	return allocator
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		concurrency int
	}{
		{name: "sequential", count: 250, concurrency: 1},
		{name: "concurrent", count: 3000, concurrency: 16},
		{name: "more workers than ids", count: 3, concurrency: 8},
		{name: "nothing", count: 0, concurrency: 4},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			allocator := &recordAllocator{
				Allocator: newTestAllocator(t, 100),
				issued:    cmap.NewWithCustomShardingFunction[uint64, struct{}](func(key uint64) uint32 { return uint32(key) }),
			}
			out := &bytes.Buffer{}
			err := generate(context.Background(), allocator, tt.count, tt.concurrency, out, zap.NewNop())
			re.NoError(err)
			re.Equal(tt.count, allocator.issued.Count())

			seen := make(map[uint64]struct{}, tt.count)
			var last uint64
			scanner := bufio.NewScanner(out)
			for scanner.Scan() {
				v, err := strconv.ParseUint(scanner.Text(), 10, 64)
				re.NoError(err)
				re.True(allocator.issued.Has(v))
				seen[v] = struct{}{}
				if tt.concurrency == 1 {
					re.Greater(v, last)
					last = v
				}
			}
			re.NoError(scanner.Err())
			re.Len(seen, tt.count)
			for i := 1; i <= tt.count; i++ {
				re.Contains(seen, uint64(i))
			}
		})
	}
}

func TestGenerate_AllocError(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	out := &bytes.Buffer{}
	err := generate(context.Background(), id.NewBatchAllocator(&id.BatchAllocatorParam{}, zap.NewNop()), 10, 4, out, zap.NewNop())
	re.ErrorIs(err, model.ErrAllocatorNotInitialized)
	re.Zero(out.Len())
}

func TestGenerate_Canceled(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := generate(ctx, newTestAllocator(t, 10), 100, 4, &bytes.Buffer{}, zap.NewNop())
	re.ErrorIs(err, context.Canceled)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestGenerate_WriteError(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	// large enough to overflow the bufio buffer
	err := generate(context.Background(), newTestAllocator(t, 1000), 10000, 4, failWriter{}, zap.NewNop())
	re.ErrorContains(err, "disk full")
}
