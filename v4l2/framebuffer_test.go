package v4l2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingAllocator(calls *int) Allocator {
	return func(n int) ([]byte, error) {
		*calls++
		return make([]byte, n), nil
	}
}

func TestFrameBuffer_New(t *testing.T) {
	fb := NewFrameBuffer(640, 480, DefaultPixelFormat)
	assert.Equal(t, 640, fb.Width())
	assert.Equal(t, 480, fb.Height())
	assert.Equal(t, PixFmtMJPEG, fb.Format())
	assert.Zero(t, fb.Len())
	assert.Nil(t, fb.Bytes())
}

func TestFrameBuffer_EnsureCapacitySameSizeKeepsAllocation(t *testing.T) {
	calls := 0
	fb := NewFrameBuffer(640, 480, PixFmtMJPEG)
	fb.SetAllocator(countingAllocator(&calls))

	require.NoError(t, fb.EnsureCapacity(1024))
	first := &fb.Bytes()[0]
	require.NoError(t, fb.EnsureCapacity(1024))

	assert.Equal(t, 1, calls)
	assert.Same(t, first, &fb.Bytes()[0])
	assert.Equal(t, 1024, fb.Len())
}

func TestFrameBuffer_EnsureCapacityResizes(t *testing.T) {
	calls := 0
	fb := NewFrameBuffer(640, 480, PixFmtMJPEG)
	fb.SetAllocator(countingAllocator(&calls))

	require.NoError(t, fb.EnsureCapacity(100))
	require.NoError(t, fb.EnsureCapacity(50))
	assert.Equal(t, 50, fb.Len())
	assert.Len(t, fb.Bytes(), 50)
	assert.Equal(t, 2, calls)

	require.NoError(t, fb.EnsureCapacity(0))
	assert.Zero(t, fb.Len())
	assert.Nil(t, fb.Bytes(), "empty buffer must not hold an allocation")
	assert.Equal(t, 2, calls)
}

func TestFrameBuffer_AllocationFailure(t *testing.T) {
	fb := NewFrameBuffer(640, 480, PixFmtMJPEG)

	err := fb.EnsureCapacity(MaxFrameSize + 1)
	require.ErrorIs(t, err, ErrAllocation)
	assert.Zero(t, fb.Len())

	err = fb.EnsureCapacity(-1)
	require.ErrorIs(t, err, ErrAllocation)

	fb.SetAllocator(func(n int) ([]byte, error) { return make([]byte, n/2), nil })
	require.ErrorIs(t, fb.EnsureCapacity(10), ErrAllocation)

	fb.SetAllocator(nil)
	require.NoError(t, fb.EnsureCapacity(10))
	assert.Equal(t, 10, fb.Len())
}

func TestFrameBuffer_Zero(t *testing.T) {
	fb := NewFrameBuffer(640, 480, PixFmtMJPEG)
	fb.Zero()

	require.NoError(t, fb.EnsureCapacity(16))
	for i := range fb.Bytes() {
		fb.Bytes()[i] = 0xFF
	}
	fb.Zero()
	assert.Equal(t, make([]byte, 16), fb.Bytes())
}

func TestFrameBuffer_SettersReturnPrevious(t *testing.T) {
	fb := NewFrameBuffer(640, 480, PixFmtMJPEG)

	assert.Equal(t, 640, fb.SetWidth(320))
	assert.Equal(t, 480, fb.SetHeight(240))
	assert.Equal(t, PixFmtMJPEG, fb.SetFormat(PixFmtRGB24))

	assert.Equal(t, 320, fb.Width())
	assert.Equal(t, 240, fb.Height())
	assert.Equal(t, PixFmtRGB24, fb.Format())
}

func TestFrameBuffer_Release(t *testing.T) {
	fb := NewFrameBuffer(640, 480, PixFmtMJPEG)
	require.NoError(t, fb.EnsureCapacity(32))
	fb.Release()
	assert.Zero(t, fb.Len())
	assert.Nil(t, fb.Bytes())
}
