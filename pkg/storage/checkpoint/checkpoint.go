// Package checkpoint persists the highest id ever reserved by an allocator.
package checkpoint

import (
	"bytes"
	"context"
	"strconv"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/pkg/errors"

	"github.com/AutoMQ/idgen/pkg/model"
)

const (
	_uint64Len = 20 // max decimal digits of an uint64
)

// Store is a durable location holding a single checkpoint value.
// Implementations are not required to be safe for concurrent use; the allocator serializes all calls.
type Store interface {
	// Exists reports whether a checkpoint has ever been created in the store.
	Exists(ctx context.Context) (bool, error)

	// Create initializes the store with lastID in a single write.
	// It returns an error wrapping model.ErrCheckpointExists if the checkpoint already exists.
	Create(ctx context.Context, lastID uint64) error

	// Load reads the checkpoint.
	// It returns an error wrapping model.ErrCheckpointNotFound if the checkpoint does not exist,
	// and an error wrapping model.ErrCorruptState if the stored value cannot be parsed.
	Load(ctx context.Context) (uint64, error)

	// Save replaces the stored checkpoint with lastID. The previous value is never kept.
	Save(ctx context.Context, lastID uint64) error

	// Close releases resources held by the store.
	Close() error
}

// Format encodes a checkpoint as one line of decimal ASCII.
// The returned buffer comes from mcache and should be released with mcache.Free once written.
func Format(lastID uint64) []byte {
	buf := mcache.Malloc(0, _uint64Len+1)
	buf = strconv.AppendUint(buf, lastID, 10)
	return append(buf, '\n')
}

// Parse decodes a checkpoint written by Format. Surrounding whitespace is ignored.
func Parse(b []byte) (uint64, error) {
	line := bytes.TrimSpace(b)
	if len(line) == 0 {
		return 0, errors.Wrap(model.ErrCorruptState, "empty checkpoint")
	}
	for _, c := range line {
		if c < '0' || c > '9' {
			return 0, errors.Wrapf(model.ErrCorruptState, "malformed checkpoint %q", line)
		}
	}
	v, err := strconv.ParseUint(string(line), 10, 64)
	if err != nil {
		return 0, model.Mark(errors.Wrapf(err, "parse checkpoint %q", line), model.ErrCorruptState)
	}
	return v, nil
}
