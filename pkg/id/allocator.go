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

// Package id hands out unique, positive, increasing ids backed by a durable checkpoint.
package id

import (
	"context"
)

const (
	// DefaultBatchSize is the number of ids reserved by one durable write.
	DefaultBatchSize = 100
	// MaxAllocN is the largest n accepted by AllocN.
	MaxAllocN = 1 << 20
)

// Allocator is the allocator to generate unique ID.
type Allocator interface {
	// Alloc allocates a new ID.
	Alloc(ctx context.Context) (uint64, error)

	// AllocN allocates N continuous IDs. N must not exceed MaxAllocN.
	AllocN(ctx context.Context, n int) ([]uint64, error)
}
