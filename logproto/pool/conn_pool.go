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

package pool

import (
	"net"
	"sync"
	"time"

	"github.com/facebookincubator/lucp/internal/metrics"
)

// DefaultConnCapacity is the default connection pool size.
const DefaultConnCapacity = 3

// ConnPool is a LIFO stack of raw sockets to a single endpoint. Acquire
// pops a pooled connection if one is available, otherwise dials a new
// one; Release pushes back if there is room, otherwise closes it.
type ConnPool struct {
	mu      sync.Mutex
	conns   []net.Conn
	cap     int
	addr    string
	dialer  net.Dialer
	timeout time.Duration
}

// NewConnPool builds a pool that dials addr on demand. capacity<=0 uses
// DefaultConnCapacity.
func NewConnPool(addr string, capacity int, dialTimeout time.Duration) *ConnPool {
	if capacity <= 0 {
		capacity = DefaultConnCapacity
	}
	return &ConnPool{cap: capacity, addr: addr, timeout: dialTimeout}
}

// Acquire pops a pooled connection, or dials a new one if the pool is
// empty.
func (p *ConnPool) Acquire() (net.Conn, error) {
	p.mu.Lock()
	n := len(p.conns)
	if n > 0 {
		c := p.conns[n-1]
		p.conns = p.conns[:n-1]
		p.mu.Unlock()
		metrics.LogConnPoolHits.WithLabelValues("reused").Inc()
		return c, nil
	}
	p.mu.Unlock()

	d := p.dialer
	d.Timeout = p.timeout
	c, err := d.Dial("tcp", p.addr)
	if err == nil {
		metrics.LogConnPoolHits.WithLabelValues("dialed").Inc()
	}
	return c, err
}

// Release returns c to the pool if there is room, otherwise closes it.
func (p *ConnPool) Release(c net.Conn) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if len(p.conns) >= p.cap {
		p.mu.Unlock()
		_ = c.Close()
		return
	}
	p.conns = append(p.conns, c)
	p.mu.Unlock()
}

// Discard closes c without returning it to the pool, for when a send
// fails and the connection must not be reused.
func (p *ConnPool) Discard(c net.Conn) {
	if c != nil {
		_ = c.Close()
	}
}

// Len reports the number of sockets currently parked in the pool.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close drains and closes every pooled connection.
func (p *ConnPool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
