package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/AutoMQ/idgen/pkg/model"
)

func TestOpenBolt_Locked(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	path := filepath.Join(t.TempDir(), "node.db")
	store, err := OpenBolt(path, zap.NewNop())
	re.NoError(err)
	defer func() { re.NoError(store.Close()) }()

	_, err = OpenBolt(path, zap.NewNop())
	re.ErrorIs(err, model.ErrStorage)
}

func TestBolt_Corrupt(t *testing.T) {
	t.Parallel()
	re := require.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "node.db")
	store, err := OpenBolt(path, zap.NewNop())
	re.NoError(err)
	defer func() { re.NoError(store.Close()) }()

	err = store.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(_boltBucket)
		if err != nil {
			return err
		}
		return bucket.Put(_boltKey, []byte("-1"))
	})
	re.NoError(err)

	exist, err := store.Exists(ctx)
	re.NoError(err)
	re.True(exist)
	_, err = store.Load(ctx)
	re.ErrorIs(err, model.ErrCorruptState)
}

func TestBolt_EmptyBucket(t *testing.T) {
	t.Parallel()
	re := require.New(t)
	ctx := context.Background()

	store, err := OpenBolt(filepath.Join(t.TempDir(), "node.db"), zap.NewNop())
	re.NoError(err)
	defer func() { re.NoError(store.Close()) }()

	err = store.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket(_boltBucket)
		return err
	})
	re.NoError(err)

	exist, err := store.Exists(ctx)
	re.NoError(err)
	re.False(exist)
	_, err = store.Load(ctx)
	re.ErrorIs(err, model.ErrCheckpointNotFound)
	re.NoError(store.Create(ctx, 0))
}
