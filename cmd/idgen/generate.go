package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AutoMQ/idgen/pkg/id"
	"github.com/AutoMQ/idgen/pkg/util/logutil"
)

// generate allocates count ids from allocator with concurrency goroutines and writes them to w, one per line.
// Lines come in the order ids are handed to the writer, which is not sorted when concurrency > 1.
func generate(ctx context.Context, allocator id.Allocator, count, concurrency int, w io.Writer, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	ids := make(chan uint64, concurrency)

	remaining := atomic.NewInt64(int64(count))
	var workers sync.WaitGroup
	workers.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		worker := i
		g.Go(func() error {
			defer logutil.LogPanic(logger, zap.Int("worker", worker))
			defer workers.Done()

			for remaining.Dec() >= 0 {
				v, err := allocator.Alloc(ctx)
				if err != nil {
					return err
				}
				select {
				case ids <- v:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(ids)
		return nil
	})

	g.Go(func() error {
		bw := bufio.NewWriter(w)
		buf := make([]byte, 0, 21)
		for v := range ids {
			buf = strconv.AppendUint(buf[:0], v, 10)
			buf = append(buf, '\n')
			if _, err := bw.Write(buf); err != nil {
				return errors.Wrap(err, "write id")
			}
		}
		return errors.Wrap(bw.Flush(), "flush ids")
	})

	return g.Wait()
}
