package v4l2

import "fmt"

// MaxFrameSize bounds a single frame allocation. The largest sane
// uncompressed frame (8K RGB24) stays well below it.
const MaxFrameSize = 256 << 20

// Allocator hands out frame storage of exactly n bytes.
type Allocator func(n int) ([]byte, error)

func defaultAllocator(n int) ([]byte, error) {
	if n < 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("cannot allocate %d bytes (limit %d)", n, MaxFrameSize)
	}
	return make([]byte, n), nil
}

// FrameBuffer describes the requested capture (width, height, pixel format)
// and holds the most recently captured frame. It is owned by the caller; a
// Session only writes into it.
type FrameBuffer struct {
	width  int
	height int
	format PixelFormat

	data  []byte
	alloc Allocator
}

func NewFrameBuffer(width, height int, format PixelFormat) *FrameBuffer {
	return &FrameBuffer{
		width:  width,
		height: height,
		format: format,
		alloc:  defaultAllocator,
	}
}

// SetAllocator replaces the allocator used by EnsureCapacity. nil restores
// the default.
func (fb *FrameBuffer) SetAllocator(a Allocator) {
	if a == nil {
		a = defaultAllocator
	}
	fb.alloc = a
}

// EnsureCapacity makes the buffer exactly n bytes long. The existing
// allocation is kept when the size already matches, so frames of identical
// size do not churn the heap.
func (fb *FrameBuffer) EnsureCapacity(n int) error {
	if n == len(fb.data) {
		return nil
	}
	fb.data = nil
	if n == 0 {
		return nil
	}
	alloc := fb.alloc
	if alloc == nil {
		alloc = defaultAllocator
	}
	data, err := alloc(n)
	if err == nil && len(data) != n {
		err = fmt.Errorf("allocator returned %d bytes, want %d", len(data), n)
	}
	if err != nil {
		return &Error{Kind: ErrAllocation, Op: "ensure capacity", Err: err}
	}
	fb.data = data
	return nil
}

// Zero clears the current frame.
func (fb *FrameBuffer) Zero() {
	clear(fb.data)
}

// Release drops the frame allocation.
func (fb *FrameBuffer) Release() {
	fb.data = nil
}

func (fb *FrameBuffer) Width() int          { return fb.width }
func (fb *FrameBuffer) Height() int         { return fb.height }
func (fb *FrameBuffer) Format() PixelFormat { return fb.format }

// Bytes returns the captured frame. The slice is reused by the next capture
// of the same size.
func (fb *FrameBuffer) Bytes() []byte { return fb.data }
func (fb *FrameBuffer) Len() int      { return len(fb.data) }

// SetWidth, SetHeight and SetFormat return the previous value. Changing the
// request while a capture is in progress has no effect on the negotiated
// format.
func (fb *FrameBuffer) SetWidth(w int) int {
	old := fb.width
	fb.width = w
	return old
}

func (fb *FrameBuffer) SetHeight(h int) int {
	old := fb.height
	fb.height = h
	return old
}

func (fb *FrameBuffer) SetFormat(f PixelFormat) PixelFormat {
	old := fb.format
	fb.format = f
	return old
}
