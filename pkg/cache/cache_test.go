// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyDeterministicAndDistinct(t *testing.T) {
	k1 := Key("pipeline.v1", "a", "b")
	k2 := Key("pipeline.v1", "a", "b")
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, Key("pipeline.v1", "ab", ""))
	assert.NotEqual(t, k1, Key("taint.v1", "a", "b"))
	assert.Len(t, k1, 64)
}

// Cache purity (property 4): hit and miss return equal data.
func TestGetOrComputePurity(t *testing.T) {
	c := New(8)
	var calls atomic.Int32
	compute := func() (*Entry, error) {
		calls.Add(1)
		return &Entry{Value: []int{1, 2, 3}}, nil
	}

	miss, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)
	hit, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "the second call must not recompute")
	assert.Equal(t, miss.Value, hit.Value)
}

// Concurrent writers for one key serialize; the second reuses the first's
// result.
func TestSingleFlight(t *testing.T) {
	c := New(8)
	var calls atomic.Int32
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.GetOrCompute("shared", func() (*Entry, error) {
				calls.Add(1)
				return &Entry{Value: "v"}, nil
			})
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "duplicate parse/analyze work must not happen")
	assert.Equal(t, 1, c.Len())
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrCompute(k, func() (*Entry, error) {
			return &Entry{Value: k}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "the oldest entry is evicted")
}

func TestPurge(t *testing.T) {
	c := New(4)
	_, err := c.GetOrCompute("k", func() (*Entry, error) { return &Entry{Value: 1}, nil })
	require.NoError(t, err)
	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(4)
	var calls atomic.Int32
	fail := func() (*Entry, error) {
		calls.Add(1)
		return nil, assert.AnError
	}
	_, err := c.GetOrCompute("k", fail)
	require.Error(t, err)
	_, err = c.GetOrCompute("k", fail)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "errors are not memoized")
}
