/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package pool implements the fixed-capacity LIFO object pools backing
// the log client and server: reusable frame skeletons and pooled TCP
// connections.
package pool

import (
	"sync"

	"github.com/facebookincubator/lucp/logproto/frame"
)

// DefaultFrameCapacity is the default frame pool size.
const DefaultFrameCapacity = 32

// FramePool is a fixed-size stack of reusable frame skeletons. A
// skeleton retains its TLV slot array between uses; only the slice
// length is reset on release, so repeated acquire/populate/release
// cycles avoid reallocating the backing array.
type FramePool struct {
	mu    sync.Mutex
	slots []*frame.Frame
	cap   int
}

// NewFramePool builds a pool with the given capacity. capacity<=0 uses
// DefaultFrameCapacity.
func NewFramePool(capacity int) *FramePool {
	if capacity <= 0 {
		capacity = DefaultFrameCapacity
	}
	return &FramePool{cap: capacity}
}

// Acquire pops a pooled frame skeleton, or builds a fresh one if the
// pool is empty.
func (p *FramePool) Acquire() *frame.Frame {
	p.mu.Lock()
	n := len(p.slots)
	if n == 0 {
		p.mu.Unlock()
		return &frame.Frame{}
	}
	f := p.slots[n-1]
	p.slots = p.slots[:n-1]
	p.mu.Unlock()
	return f
}

// Release returns f to the pool. TLV values are dropped but the slice
// header (and its backing array) is retained; if the pool is already
// at capacity, f is discarded outright.
func (p *FramePool) Release(f *frame.Frame) {
	if f == nil {
		return
	}
	f.TLVs = f.TLVs[:0]
	f.Sequence = 0
	f.TimestampSec = 0
	f.TimestampMS = 0
	f.Type = 0
	f.Status = 0

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.slots) >= p.cap {
		return
	}
	p.slots = append(p.slots, f)
}

// Len reports the number of frames currently parked in the pool.
func (p *FramePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
