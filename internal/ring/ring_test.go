// File: internal/ring/ring_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ring

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBasic(t *testing.T) {
	r := New[int](4)
	assert.Equal(t, 4, r.Cap())
	assert.Equal(t, 0, r.Len())

	_, ok := r.Dequeue()
	assert.False(t, ok, "dequeue on empty ring must fail")

	for i := 1; i <= 4; i++ {
		require.True(t, r.Enqueue(i))
	}
	assert.False(t, r.Enqueue(5), "enqueue on full ring must fail")
	assert.Equal(t, 4, r.Len())

	for i := 1; i <= 4; i++ {
		v, ok := r.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = r.Dequeue()
	assert.False(t, ok)
}

func TestRingCapacityRounding(t *testing.T) {
	assert.Equal(t, 8, New[int](5).Cap())
	assert.Equal(t, 1, New[int](1).Cap())
	assert.Panics(t, func() { New[int](0) })
}

func TestRingWrapAround(t *testing.T) {
	r := New[int](2)
	for lap := 0; lap < 1000; lap++ {
		require.True(t, r.Enqueue(lap))
		v, ok := r.Dequeue()
		require.True(t, ok)
		require.Equal(t, lap, v)
	}
	assert.Equal(t, 0, r.Len())
}

func TestRingMPMC(t *testing.T) {
	r := New[int](1024)
	producers := 10
	consumers := 10
	itemsPerProducer := 10000
	if testing.Short() {
		itemsPerProducer = 1000
	}

	var wg sync.WaitGroup
	var sentSum int64
	var receivedSum int64
	var receivedCount int64
	totalItems := int64(producers * itemsPerProducer)

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				val := pid*itemsPerProducer + i + 1
				for !r.Enqueue(val) {
					runtime.Gosched()
				}
				atomic.AddInt64(&sentSum, int64(val))
			}
		}(p)
	}

	consumerWg := sync.WaitGroup{}
	for c := 0; c < consumers; c++ {
		consumerWg.Add(1)
		go func() {
			defer consumerWg.Done()
			for {
				if val, ok := r.Dequeue(); ok {
					atomic.AddInt64(&receivedSum, int64(val))
					if atomic.AddInt64(&receivedCount, 1) == totalItems {
						return
					}
				} else {
					if atomic.LoadInt64(&receivedCount) >= totalItems {
						return
					}
					runtime.Gosched()
				}
			}
		}()
	}

	wg.Wait()

	done := make(chan struct{})
	go func() {
		consumerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, atomic.LoadInt64(&sentSum), atomic.LoadInt64(&receivedSum), "checksum mismatch")
	case <-time.After(10 * time.Second):
		t.Fatalf("timeout waiting for consumers, received %d/%d",
			atomic.LoadInt64(&receivedCount), totalItems)
	}
}
