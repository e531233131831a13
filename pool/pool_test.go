// File: pool/pool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
)

type payload struct {
	n   int
	ptr *int
}

func TestPoolGetAddressPut(t *testing.T) {
	p := New[payload](DefaultConfig())

	h, v, err := p.Get()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, h.Valid())
	assert.Equal(t, uint32(1), h.Version()&1, "issued versions must be odd")

	v.n = 42
	got := p.Address(h)
	require.NotNil(t, got)
	assert.Equal(t, 42, got.n)
	assert.Same(t, v, got, "slot pointers must be stable")

	require.NoError(t, p.Put(h))
	assert.Nil(t, p.Address(h), "stale handle must not resolve")
}

func TestPoolVersionBumpOnReuse(t *testing.T) {
	p := New[payload](DefaultConfig())

	h1, v1, err := p.Get()
	require.NoError(t, err)
	v1.n = 7
	x := 1
	v1.ptr = &x
	require.NoError(t, p.Put(h1))

	// The freed slot is the only cached one, so it is reused first.
	h2, v2, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, h1.Slot(), h2.Slot(), "freed slot should be recycled")
	assert.NotEqual(t, h1.Version(), h2.Version())
	assert.Greater(t, h2.Version(), h1.Version())

	// Slot memory is handed back as-is; the new occupant initializes it.
	v2.n = 0
	v2.ptr = nil

	assert.Nil(t, p.Address(h1), "old incarnation stays dead after reuse")
	assert.NotNil(t, p.Address(h2))
}

func TestPoolDoublePut(t *testing.T) {
	p := New[int](DefaultConfig())
	h, _, err := p.Get()
	require.NoError(t, err)

	require.NoError(t, p.Put(h))
	assert.ErrorIs(t, p.Put(h), api.ErrNotFound)
	assert.ErrorIs(t, p.Put(api.InvalidHandle), api.ErrInvalidArgument)
}

func TestPoolAddressGarbage(t *testing.T) {
	p := New[int](DefaultConfig())
	assert.Nil(t, p.Address(api.InvalidHandle))
	assert.Nil(t, p.Address(api.MakeHandle(1, 0)), "never-issued slot must not resolve")
	assert.Nil(t, p.Address(api.MakeHandle(3, 1<<20)), "out-of-range slot must not resolve")

	h, _, err := p.Get()
	require.NoError(t, err)
	assert.Nil(t, p.Address(api.MakeHandle(h.Version()+2, h.Slot())), "future version must not resolve")
}

func TestPoolGrowth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSlots = 8
	p := New[int](cfg)

	handles := make([]api.Handle, 0, 100)
	for i := 0; i < 100; i++ {
		h, v, err := p.Get()
		require.NoError(t, err)
		*v = i
		handles = append(handles, h)
	}

	st := p.Stats()
	assert.Equal(t, 100, st.Live)
	assert.GreaterOrEqual(t, st.Capacity, 100)
	assert.Greater(t, st.Blocks, 1)

	// Growth must not move existing slots.
	for i, h := range handles {
		v := p.Address(h)
		require.NotNil(t, v)
		assert.Equal(t, i, *v)
	}
}

func TestPoolExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSlots = 4
	cfg.MaxBlocks = 2
	p := New[int](cfg)

	for i := 0; i < 8; i++ {
		_, _, err := p.Get()
		require.NoError(t, err)
	}
	_, _, err := p.Get()
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrResourceExhausted)

	var se *api.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, api.ErrCodeResourceExhausted, se.Code)
}

func TestPoolConcurrentChurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSlots = 16
	p := New[payload](cfg)

	workers := 8
	rounds := 5000
	if testing.Short() {
		rounds = 500
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			local := make([]api.Handle, 0, 16)
			for i := 0; i < rounds; i++ {
				h, v, err := p.Get()
				if err != nil {
					t.Error(err)
					return
				}
				v.n = seed
				local = append(local, h)
				if len(local) == cap(local) {
					for _, lh := range local {
						got := p.Address(lh)
						if got == nil {
							t.Error("live handle must resolve")
							return
						}
						if err := p.Put(lh); err != nil {
							t.Error(err)
							return
						}
					}
					local = local[:0]
				}
			}
			for _, lh := range local {
				_ = p.Put(lh)
			}
		}(w)
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, 0, st.Live)
	assert.Equal(t, st.Gets, st.Puts)
}
