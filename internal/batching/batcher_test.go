package batching

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushesOnMaxSize(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]int

	b := New[int](3, time.Hour, func(items []int) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, items)
	})

	b.Add(1)
	b.Add(2)
	b.Add(3)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, flushed[0])
	mu.Unlock()
}

func TestFlushesOnInterval(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]string

	b := New[string](100, 20*time.Millisecond, func(items []string) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, items)
	})
	b.Add("a")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStopFlushesRemaining(t *testing.T) {
	var mu sync.Mutex
	var flushed []int

	b := New[int](100, time.Hour, func(items []int) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, items...)
	})
	b.Add(1)
	b.Add(2)
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, flushed)
}
