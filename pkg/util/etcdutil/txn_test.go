package etcdutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AutoMQ/idgen/pkg/util/testutil"
)

type MockEtcdTxn struct {
	mock.Mock
}

func (m *MockEtcdTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	args := m.Called(cs)
	return args.Get(0).(clientv3.Txn)
}

func (m *MockEtcdTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	args := m.Called(ops)
	return args.Get(0).(clientv3.Txn)
}

func (m *MockEtcdTxn) Else(ops ...clientv3.Op) clientv3.Txn {
	args := m.Called(ops)
	return args.Get(0).(clientv3.Txn)
}

func (m *MockEtcdTxn) Commit() (*clientv3.TxnResponse, error) {
	args := m.Called()
	return args.Get(0).(*clientv3.TxnResponse), args.Error(1)
}

func TestSlowTxn(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	obsZapCore, obsLogs := observer.New(zap.InfoLevel)
	obsLogger := zap.New(obsZapCore)

	mTxn := &MockEtcdTxn{}
	mTxn.On("Commit").After(DefaultSlowRequestTime+time.Second).Return(&clientv3.TxnResponse{}, nil)
	txn := Txn{
		Txn:    mTxn,
		cancel: func() {},
		lg:     obsLogger,
	}

	_, err := txn.Commit()
	re.NoError(err)
	re.Equal(1, obsLogs.FilterMessage("txn runs too slow").Len())
}

func TestNormalTxn(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	_, client, closeFunc := testutil.StartEtcd(t, nil)
	defer closeFunc()

	ctx := context.Background()
	logger := zap.NewNop()

	resp, err := NewTxn(ctx, client, logger).If(clientv3.Compare(clientv3.CreateRevision("test/key"), "=", 0)).
		Then(clientv3.OpPut("test/key", "val1")).
		Else(clientv3.OpPut("test/key", "val2")).
		Commit()
	re.NoError(err)
	re.True(resp.Succeeded)
	got, err := GetOne(ctx, client, []byte("test/key"), logger)
	re.NoError(err)
	re.Equal("val1", string(got.Value))

	resp, err = NewTxn(ctx, client, logger).If(clientv3.Compare(clientv3.CreateRevision("test/key"), "=", 0)).
		Then(clientv3.OpPut("test/key", "val1")).
		Else(clientv3.OpPut("test/key", "val2")).
		Commit()
	re.NoError(err)
	re.False(resp.Succeeded)
	got, err = GetOne(ctx, client, []byte("test/key"), logger)
	re.NoError(err)
	re.Equal("val2", string(got.Value))
}

func TestCompareAndPut(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	_, client, closeFunc := testutil.StartEtcd(t, nil)
	defer closeFunc()

	ctx := context.Background()
	logger := zap.NewNop()
	notExist := clientv3.Compare(clientv3.CreateRevision("test/key"), "=", 0)

	ok, err := CompareAndPut(ctx, client, "test/key", []byte("val1"), logger, notExist)
	re.NoError(err)
	re.True(ok)

	ok, err = CompareAndPut(ctx, client, "test/key", []byte("val2"), logger, notExist)
	re.NoError(err)
	re.False(ok)

	ok, err = CompareAndPut(ctx, client, "test/key", []byte("val2"), logger, clientv3.Compare(clientv3.Value("test/key"), "=", "val1"))
	re.NoError(err)
	re.True(ok)
	got, err := GetOne(ctx, client, []byte("test/key"), logger)
	re.NoError(err)
	re.Equal("val2", string(got.Value))

	// without comparisons the put always happens
	ok, err = CompareAndPut(ctx, client, "test/key", []byte("val3"), logger)
	re.NoError(err)
	re.True(ok)

	cCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = CompareAndPut(cCtx, client, "test/key", []byte("val4"), logger)
	re.ErrorIs(err, context.Canceled)
}
