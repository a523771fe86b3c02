package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/AutoMQ/idgen/pkg/id"
)

// Allocator is the configuration for id.BatchAllocator
type Allocator struct {
	// BatchSize is the number of ids reserved by one checkpoint write.
	BatchSize uint64
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

func (a *Allocator) Validate() error {
	if a.BatchSize == 0 {
		return errors.Errorf("invalid batch size `%d`", a.BatchSize)
	}
	return nil
}

func allocatorConfigure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Uint64("batch-size", id.DefaultBatchSize, "number of ids reserved by one checkpoint write")
	_ = v.BindPFlag("allocator.batchSize", fs.Lookup("batch-size"))
}
