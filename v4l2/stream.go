package v4l2

import (
	"unsafe"
)

func init() {
	if unsafe.Sizeof(Buffer{}) != 88 {
		panic("v4l2.Buffer size mismatch, check struct layout")
	}
	if unsafe.Sizeof(Format{}) != 208 {
		panic("v4l2.Format size mismatch, check struct layout")
	}
}

const (
	BufTypeVideoCapture = 1
	MemoryMmap          = 1

	// FieldAny lets the driver pick progressive or interlaced ordering.
	FieldAny  = 0
	FieldNone = 1
)

type RequestBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Flags        uint8
	Reserved     [3]uint8
}

// PixFormat mirrors struct v4l2_pix_format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  PixelFormat
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// Format mirrors struct v4l2_format. The union is 8-byte aligned in C
// because it contains pointers, hence the explicit padding.
type Format struct {
	Type uint32
	_    [4]byte
	Raw  [200]byte
}

func (f *Format) Pix() *PixFormat {
	return (*PixFormat)(unsafe.Pointer(&f.Raw[0]))
}

type Timeval struct {
	Sec  int64
	Usec int64
}

type Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	UserBits [4]uint8
}

type Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32

	Timestamp Timeval
	Timecode  Timecode

	Sequence uint32
	Memory   uint32

	M [8]byte

	Length    uint32
	Reserved2 uint32
	Reserved  uint32
}

func (b *Buffer) Offset() uint32 {
	return *(*uint32)(unsafe.Pointer(&b.M[0]))
}

func (b *Buffer) SetOffset(off uint32) {
	*(*uint32)(unsafe.Pointer(&b.M[0])) = off
}

func newMmapBuffer(index uint32) Buffer {
	return Buffer{
		Index:  index,
		Type:   BufTypeVideoCapture,
		Memory: MemoryMmap,
	}
}
