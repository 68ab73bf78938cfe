// Package v4l2 captures still frames from Video4Linux2 devices through the
// streaming (mmap) I/O interface, using a single kernel buffer.
//
// A Session walks the device through Open, InitCapture, StartStreaming,
// WaitForFrame (once per frame), StopStreaming and Close. Each captured frame
// is copied into a caller-owned FrameBuffer.
package v4l2

import (
	"bytes"
	"unsafe"
)

const (
	// [ dir(2) ][ size(14) ][ type(8) ][ nr(8) ]
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits     // 8
	iocSizeShift = iocTypeShift + iocTypeBits // 16
	iocDirShift  = iocSizeShift + iocSizeBits // 30

	iocNone  = 0
	iocWrite = 1 // user -> kernel (_IOW)
	iocRead  = 2 // kernel -> user (_IOR)

	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) |
		(size << iocSizeShift) |
		(typ << iocTypeShift) |
		(nr << iocNRShift)
}

func ior(typ, nr, size uintptr) uintptr {
	return ioc(iocRead, typ, nr, size)
}

func iow(typ, nr, size uintptr) uintptr {
	return ioc(iocWrite, typ, nr, size)
}

func iowr(typ, nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, typ, nr, size)
}

// Request numbers from linux/videodev2.h.
var (
	vidiocQueryCap  = ior('V', 0, unsafe.Sizeof(Capability{}))
	vidiocSFmt      = iowr('V', 5, unsafe.Sizeof(Format{}))
	vidiocReqBufs   = iowr('V', 8, unsafe.Sizeof(RequestBuffers{}))
	vidiocQueryBuf  = iowr('V', 9, unsafe.Sizeof(Buffer{}))
	vidiocQBuf      = iowr('V', 15, unsafe.Sizeof(Buffer{}))
	vidiocDQBuf     = iowr('V', 17, unsafe.Sizeof(Buffer{}))
	vidiocStreamOn  = iow('V', 18, unsafe.Sizeof(uint32(0)))
	vidiocStreamOff = iow('V', 19, unsafe.Sizeof(uint32(0)))
)

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

type Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

func (c *Capability) DriverName() string { return cString(c.Driver[:]) }
func (c *Capability) CardName() string   { return cString(c.Card[:]) }
func (c *Capability) Bus() string        { return cString(c.BusInfo[:]) }

// effective returns the capability set of the opened node. DeviceCaps is only
// meaningful when the driver sets CapDeviceCaps.
func (c *Capability) effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// CanCapture reports whether the node supports single-planar video capture.
func (c *Capability) CanCapture() bool { return c.effective()&CapVideoCapture != 0 }

// CanStream reports whether the node supports streaming I/O.
func (c *Capability) CanStream() bool { return c.effective()&CapStreaming != 0 }
