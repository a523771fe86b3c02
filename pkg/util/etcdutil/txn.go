package etcdutil

import (
	"context"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Txn wraps etcd transaction with a default timeout, and logs slow ones.
type Txn struct {
	clientv3.Txn
	cancel context.CancelFunc
	lg     *zap.Logger
}

// NewTxn create a Txn.
func NewTxn(ctx context.Context, kv clientv3.KV, lg *zap.Logger) clientv3.Txn {
	tCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	return &Txn{
		Txn:    kv.Txn(tCtx),
		cancel: cancel,
		lg:     lg,
	}
}

func (t *Txn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.Txn = t.Txn.If(cs...)
	return t
}

func (t *Txn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.Txn = t.Txn.Then(ops...)
	return t
}

func (t *Txn) Else(ops ...clientv3.Op) clientv3.Txn {
	t.Txn = t.Txn.Else(ops...)
	return t
}

// Commit commits the transaction and releases its timeout.
func (t *Txn) Commit() (*clientv3.TxnResponse, error) {
	defer t.cancel()

	start := time.Now()
	resp, err := t.Txn.Commit()
	if cost := time.Since(start); cost > DefaultSlowRequestTime {
		var succeeded bool
		if resp != nil {
			succeeded = resp.Succeeded
		}
		t.lg.Warn("txn runs too slow", zap.Bool("succeeded", succeeded), zap.Duration("cost", cost), zap.Error(err))
	}

	return resp, errors.WithMessage(err, "commit txn")
}

// CompareAndPut puts value under key if all comparisons hold.
// It returns false without error if any comparison fails.
func CompareAndPut(ctx context.Context, kv clientv3.KV, key string, value []byte, lg *zap.Logger, cs ...clientv3.Cmp) (bool, error) {
	resp, err := NewTxn(ctx, kv, lg).If(cs...).Then(clientv3.OpPut(key, string(value))).Commit()
	if err != nil {
		return false, errors.WithMessagef(err, "put key %s", key)
	}
	return resp.Succeeded, nil
}
