// File: pool/pool.go
// Package pool implements versioned slab allocation for runtime records.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Pool hands out slots from block-allocated arenas. Slots are identified
// by 64-bit handles carrying {version:32 | slot:32}; every recycle bumps the
// slot version, so a handle that outlives its resource dereferences to nil.
// Blocks are never freed, which keeps slot pointers stable for the process
// lifetime. Freed slot indices are cached in sharded lock-free rings with a
// mutex-protected overflow queue behind them.

package pool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/internal/ring"
)

// DefaultBlockSlots is the number of slots added per arena growth step.
const DefaultBlockSlots = 64

// Config tunes one Pool instance.
type Config struct {
	// BlockSlots is the arena growth granularity, in slots.
	BlockSlots int
	// Shards is the number of free-cache rings.
	Shards int
	// ShardCap is the capacity of each free-cache ring.
	ShardCap int
	// MaxBlocks bounds the arena; zero means unbounded.
	MaxBlocks int
}

// DefaultConfig returns the tuning used by the process-wide pools.
func DefaultConfig() Config {
	return Config{
		BlockSlots: DefaultBlockSlots,
		Shards:     runtime.NumCPU(),
		ShardCap:   256,
		MaxBlocks:  0,
	}
}

func (c Config) withDefaults() Config {
	if c.BlockSlots <= 0 {
		c.BlockSlots = DefaultBlockSlots
	}
	if c.Shards <= 0 {
		c.Shards = 1
	}
	if c.ShardCap <= 0 {
		c.ShardCap = 256
	}
	return c
}

// entry is one slot. The version word is even while the slot is free and
// odd while it is issued; a handle always carries the odd version it was
// issued with, so neither stale nor forged handles can match a free slot.
type entry[T any] struct {
	version atomic.Uint32
	val     T
}

type block[T any] struct {
	entries []entry[T]
}

type shard[T any] struct {
	free *ring.Ring[uint32]
	_    [64]byte // Padding to keep shard rings off shared cache lines
}

// Pool is a versioned slab pool. All methods are safe for concurrent use.
type Pool[T any] struct {
	cfg Config

	// blocks is replaced copy-on-write under mu; readers load a snapshot.
	blocks atomic.Pointer[[]*block[T]]

	shards []shard[T]
	rr     atomic.Uint32

	mu       sync.Mutex // guards growth and overflow
	overflow *queue.Queue

	// next is the first never-issued slot index, bounded by the arena size.
	next atomic.Uint32

	gets atomic.Uint64
	puts atomic.Uint64
}

// Compile-time interface compliance.
var _ api.SlabPool[int] = (*Pool[int])(nil)

// New creates a pool with one pre-allocated block.
func New[T any](cfg Config) *Pool[T] {
	cfg = cfg.withDefaults()
	p := &Pool[T]{
		cfg:      cfg,
		shards:   make([]shard[T], cfg.Shards),
		overflow: queue.New(),
	}
	for i := range p.shards {
		p.shards[i].free = ring.New[uint32](cfg.ShardCap)
	}
	first := []*block[T]{{entries: make([]entry[T], cfg.BlockSlots)}}
	p.blocks.Store(&first)
	return p
}

// Get reserves a slot and returns its handle and a stable pointer to the
// slot memory. The memory is whatever the previous occupant left behind;
// the caller initializes its record before publishing the handle.
func (p *Pool[T]) Get() (api.Handle, *T, error) {
	slot, ok := p.popFree()
	if !ok {
		var err error
		slot, err = p.freshSlot()
		if err != nil {
			return api.InvalidHandle, nil, err
		}
	}
	e := p.entryAt(slot)
	// Exclusive ownership between pop/claim and handle publication.
	v := e.version.Load() + 1
	e.version.Store(v)
	p.gets.Add(1)
	return api.MakeHandle(v, slot), &e.val, nil
}

// Address resolves a handle to the live slot, or nil when the handle is
// stale, forged, or invalid.
func (p *Pool[T]) Address(h api.Handle) *T {
	if !h.Valid() {
		return nil
	}
	e := p.entryAt(h.Slot())
	if e == nil || e.version.Load() != h.Version() {
		return nil
	}
	return &e.val
}

// Put recycles the slot behind h. The handle is dead afterwards; double
// puts and stale handles report ErrNotFound.
func (p *Pool[T]) Put(h api.Handle) error {
	if !h.Valid() {
		return api.ErrInvalidArgument
	}
	e := p.entryAt(h.Slot())
	if e == nil {
		return api.ErrNotFound
	}
	v := h.Version()
	if !e.version.CompareAndSwap(v, v+1) {
		return api.ErrNotFound
	}
	// Slot memory is left as the occupant last wrote it: a late reader
	// that resolved the handle just before the version bump may still be
	// looking at it, so the pool itself never writes the payload.
	p.puts.Add(1)
	p.pushFree(h.Slot())
	return nil
}

// Stats reports pool counters for debug probes.
func (p *Pool[T]) Stats() api.PoolStats {
	gets := p.gets.Load()
	puts := p.puts.Load()
	blocks := *p.blocks.Load()
	return api.PoolStats{
		Gets:     gets,
		Puts:     puts,
		Live:     int(gets - puts),
		Capacity: len(blocks) * p.cfg.BlockSlots,
		Blocks:   len(blocks),
	}
}

func (p *Pool[T]) entryAt(slot uint32) *entry[T] {
	blocks := *p.blocks.Load()
	bi := int(slot) / p.cfg.BlockSlots
	if bi >= len(blocks) {
		return nil
	}
	return &blocks[bi].entries[int(slot)%p.cfg.BlockSlots]
}

func (p *Pool[T]) popFree() (uint32, bool) {
	k := len(p.shards)
	start := int(p.rr.Add(1))
	for i := 0; i < k; i++ {
		if s, ok := p.shards[(start+i)%k].free.Dequeue(); ok {
			return s, true
		}
	}
	p.mu.Lock()
	if p.overflow.Length() > 0 {
		s := p.overflow.Remove().(uint32)
		p.mu.Unlock()
		return s, true
	}
	p.mu.Unlock()
	return 0, false
}

func (p *Pool[T]) pushFree(slot uint32) {
	s := int(p.rr.Add(1)) % len(p.shards)
	if p.shards[s].free.Enqueue(slot) {
		return
	}
	p.mu.Lock()
	p.overflow.Add(slot)
	p.mu.Unlock()
}

func (p *Pool[T]) freshSlot() (uint32, error) {
	for {
		blocks := *p.blocks.Load()
		total := uint32(len(blocks) * p.cfg.BlockSlots)
		n := p.next.Load()
		if n < total {
			if p.next.CompareAndSwap(n, n+1) {
				return n, nil
			}
			continue
		}
		if err := p.grow(); err != nil {
			return 0, err
		}
	}
}

func (p *Pool[T]) grow() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := *p.blocks.Load()
	// Re-check under the lock: a concurrent grow may have run already.
	if p.next.Load() < uint32(len(cur)*p.cfg.BlockSlots) {
		return nil
	}
	if p.cfg.MaxBlocks > 0 && len(cur) >= p.cfg.MaxBlocks {
		return api.NewError(api.ErrCodeResourceExhausted, "slab pool arena is full").
			WithContext("blocks", len(cur)).
			WithContext("block_slots", p.cfg.BlockSlots)
	}
	next := make([]*block[T], len(cur)+1)
	copy(next, cur)
	next[len(cur)] = &block[T]{entries: make([]entry[T], p.cfg.BlockSlots)}
	p.blocks.Store(&next)
	return nil
}
