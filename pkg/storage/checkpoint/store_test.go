package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
	"github.com/AutoMQ/idgen/pkg/util/testutil"
)

// testStores returns constructors of every Store implementation, each backed by fresh storage.
// Calling a constructor twice returns two stores over the same location.
func testStores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"file": func() func() Store {
			path := filepath.Join(t.TempDir(), "sub", "node.id")
			return func() Store { return NewFile(path, zap.NewNop()) }
		}(),
		"bolt": func() func() Store {
			path := filepath.Join(t.TempDir(), "sub", "node.db")
			return func() Store {
				store, err := OpenBolt(path, zap.NewNop())
				require.NoError(t, err)
				return store
			}
		}(),
		"etcd": func() func() Store {
			_, client, closeFunc := testutil.StartEtcd(t, nil)
			t.Cleanup(closeFunc)
			return func() Store {
				return NewEtcd(&EtcdParam{KV: client, RootPath: "test-root", Key: "test-key"}, zap.NewNop())
			}
		}(),
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	for name, open := range testStores(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)
			ctx := context.Background()

			store := open()

			exist, err := store.Exists(ctx)
			re.NoError(err)
			re.False(exist)
			_, err = store.Load(ctx)
			re.ErrorIs(err, model.ErrCheckpointNotFound)

			re.NoError(store.Create(ctx, 0))
			exist, err = store.Exists(ctx)
			re.NoError(err)
			re.True(exist)
			lastID, err := store.Load(ctx)
			re.NoError(err)
			re.Zero(lastID)
			re.ErrorIs(store.Create(ctx, 0), model.ErrCheckpointExists)

			for _, v := range []uint64{100, 200, 12345678901234} {
				re.NoError(store.Save(ctx, v))
				lastID, err = store.Load(ctx)
				re.NoError(err)
				re.Equal(v, lastID)
			}
			re.NoError(store.Close())

			// reopen
			store = open()
			defer func() { re.NoError(store.Close()) }()
			exist, err = store.Exists(ctx)
			re.NoError(err)
			re.True(exist)
			lastID, err = store.Load(ctx)
			re.NoError(err)
			re.Equal(uint64(12345678901234), lastID)
			re.NoError(store.Save(ctx, 12345678901334))
			lastID, err = store.Load(ctx)
			re.NoError(err)
			re.Equal(uint64(12345678901334), lastID)
		})
	}
}

func TestStore_CreateWithValue(t *testing.T) {
	t.Parallel()

	for name, open := range testStores(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)
			ctx := context.Background()

			store := open()
			defer func() { re.NoError(store.Close()) }()

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			re.ErrorIs(store.Create(canceled, 100), model.ErrStorage)
			exist, err := store.Exists(ctx)
			re.NoError(err)
			re.False(exist)

			re.NoError(store.Create(ctx, 100))
			lastID, err := store.Load(ctx)
			re.NoError(err)
			re.Equal(uint64(100), lastID)
			re.ErrorIs(store.Create(ctx, 200), model.ErrCheckpointExists)

			lastID, err = store.Load(ctx)
			re.NoError(err)
			re.Equal(uint64(100), lastID)
		})
	}
}

func TestStore_SaveCanceled(t *testing.T) {
	t.Parallel()

	for name, open := range testStores(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			store := open()
			defer func() { re.NoError(store.Close()) }()
			re.NoError(store.Create(context.Background(), 0))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := store.Save(ctx, 100)
			re.ErrorIs(err, model.ErrStorage)

			lastID, err := store.Load(context.Background())
			re.NoError(err)
			re.Zero(lastID)
		})
	}
}
