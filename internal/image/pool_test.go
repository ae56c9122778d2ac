package image

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_GetPut(t *testing.T) {
	pool := NewPool(2)

	buf, err := pool.Get(4, 4)
	require.NoError(t, err)
	buf.Fill(1, 1, 1, 1)
	pool.Put(buf)
	assert.Equal(t, 1, pool.Len(4, 4))

	again, err := pool.Get(4, 4)
	require.NoError(t, err)
	assert.Same(t, buf, again, "same-size buffer is reused")
	assert.Equal(t, make([]byte, 4*4*4), again.Pix, "reused buffer is cleared")

	other, err := pool.Get(5, 4)
	require.NoError(t, err)
	assert.NotSame(t, buf, other)
}

func TestPool_MaxPerBucket(t *testing.T) {
	pool := NewPool(1)
	a, _ := pool.Get(2, 2)
	b, _ := pool.Get(2, 2)
	pool.Put(a)
	pool.Put(b)
	pool.Put(nil)
	assert.Equal(t, 1, pool.Len(2, 2))
}

func TestPool_InvalidSize(t *testing.T) {
	_, err := NewPool(0).Get(0, 3)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestPool_Concurrent(t *testing.T) {
	pool := NewPool(0)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				buf, err := pool.Get(8, 8)
				if err != nil {
					t.Error(err)
					return
				}
				pool.Put(buf)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, pool.Len(8, 8), 16)
}

func TestDefaultPool(t *testing.T) {
	buf, err := GetFromDefault(3, 3)
	require.NoError(t, err)
	PutToDefault(buf)
}
