package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaywalker76/LocustDB/errors"
)

func loadValue(v string, size int64) func() (interface{}, int64, error) {
	return func() (interface{}, int64, error) {
		return v, size, nil
	}
}

func TestGetOrLoadCachesValue(t *testing.T) {
	c := New(1024)
	calls := 0
	loader := func() (interface{}, int64, error) {
		calls++
		return "v1", 10, nil
	}
	h1, err := c.GetOrLoad("k1", loader)
	require.NoError(t, err)
	require.Equal(t, "v1", h1.Value())
	h1.Release()

	h2, err := c.GetOrLoad("k1", loader)
	require.NoError(t, err)
	require.Equal(t, "v1", h2.Value())
	h2.Release()
	require.Equal(t, 1, calls)
	require.Equal(t, int64(1), c.Hits())
	require.Equal(t, int64(1), c.Misses())
}

func TestLoaderErrorNotCached(t *testing.T) {
	c := New(1024)
	boom := errors.NewCorruptSegmentError("t/c/0", "checksum mismatch")
	_, err := c.GetOrLoad("k1", func() (interface{}, int64, error) {
		return nil, 0, boom
	})
	require.Error(t, err)
	require.Equal(t, 0, c.Len())

	h, err := c.GetOrLoad("k1", loadValue("ok", 1))
	require.NoError(t, err)
	require.Equal(t, "ok", h.Value())
	h.Release()
}

func TestEvictionByRecency(t *testing.T) {
	c := New(30)
	for _, k := range []string{"a", "b", "c"} {
		h, err := c.GetOrLoad(k, loadValue(k, 10))
		require.NoError(t, err)
		h.Release()
	}
	// touch a so b is the least recent
	h, err := c.GetOrLoad("a", loadValue("a", 10))
	require.NoError(t, err)
	h.Release()
	require.Equal(t, int64(1), c.Hits())

	h, err = c.GetOrLoad("d", loadValue("d", 10))
	require.NoError(t, err)
	h.Release()
	require.Equal(t, 3, c.Len())
	require.Equal(t, int64(30), c.UsedBytes())

	// b must be the evicted one
	hits := c.Hits()
	h, err = c.GetOrLoad("b", loadValue("b", 10))
	require.NoError(t, err)
	h.Release()
	require.Equal(t, hits, c.Hits())
}

func TestPinnedEntryNeverEvicted(t *testing.T) {
	c := New(10)
	pinned, err := c.GetOrLoad("a", loadValue("a", 10))
	require.NoError(t, err)

	h, err := c.GetOrLoad("b", loadValue("b", 10))
	require.NoError(t, err)
	h.Release()

	// a is pinned, so it survived the over-budget insert of b
	hits := c.Hits()
	h2, err := c.GetOrLoad("a", loadValue("a", 10))
	require.NoError(t, err)
	require.Equal(t, hits+1, c.Hits())
	h2.Release()
	pinned.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	c := New(100)
	h, err := c.GetOrLoad("a", loadValue("a", 10))
	require.NoError(t, err)
	h.Release()
	h.Release()
	h2, err := c.GetOrLoad("a", loadValue("a", 10))
	require.NoError(t, err)
	require.Equal(t, "a", h2.Value())
	h2.Release()
}

func TestOversizedValueReturnedUncached(t *testing.T) {
	c := New(10)
	h, err := c.GetOrLoad("big", loadValue("big", 1000))
	require.NoError(t, err)
	require.Equal(t, "big", h.Value())
	require.Equal(t, 0, c.Len())
	h.Release()
}

func TestSingleLoaderPerKey(t *testing.T) {
	c := New(1 << 20)
	var calls int32
	var start sync.WaitGroup
	start.Add(1)
	loader := func() (interface{}, int64, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "v", 8, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			h, err := c.GetOrLoad("k", loader)
			require.NoError(t, err)
			require.Equal(t, "v", h.Value())
			h.Release()
		}()
	}
	start.Done()
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConcurrentPinStress(t *testing.T) {
	c := New(64)
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				k := keys[(seed+n)%len(keys)]
				h, err := c.GetOrLoad(k, loadValue(k, 16))
				require.NoError(t, err)
				require.Equal(t, k, h.Value())
				h.Release()
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.UsedBytes(), int64(64))
}
