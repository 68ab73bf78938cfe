package v4l2

import (
	"syscall"
	"time"
	"unsafe"
)

const fakeDevice = "/dev/video0"

// fakeDriver simulates a single-node V4L2 capture driver. It interprets the
// same ioctl requests the kernel would and tracks every resource a session
// acquires so tests can detect leaks.
type fakeDriver struct {
	nextFD  int
	openFDs map[int]bool

	// snap coerces a requested size, like drivers clamping to a supported
	// mode. nil accepts any size.
	snap func(w, h uint32) (uint32, uint32)
	// formats lists the supported pixel formats. nil accepts any.
	formats []PixelFormat

	bufLen  int
	mapping []byte
	mmaps   int
	munmaps int

	streaming bool
	queued    bool
	sequence  uint32
	frames    [][]byte

	neverReady bool
	pollErr    error
	polls      int

	calls    map[uintptr]int
	failures map[uintptr]func(call int) error

	openErr   error
	closeErr  error
	mmapErr   error
	munmapErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		nextFD:   3,
		openFDs:  map[int]bool{},
		bufLen:   64 << 10,
		calls:    map[uintptr]int{},
		failures: map[uintptr]func(int) error{},
	}
}

func (d *fakeDriver) push(frames ...[]byte) {
	d.frames = append(d.frames, frames...)
}

// failOn makes the n-th call (1-based) of req fail with err. n == 0 fails
// every call.
func (d *fakeDriver) failOn(req uintptr, n int, err error) {
	d.failures[req] = func(call int) error {
		if n == 0 || call == n {
			return err
		}
		return nil
	}
}

func (d *fakeDriver) openCount() int { return len(d.openFDs) }

func (d *fakeDriver) liveMappings() int { return d.mmaps - d.munmaps }

func (d *fakeDriver) Open(path string) (int, error) {
	if d.openErr != nil {
		return -1, d.openErr
	}
	if path != fakeDevice {
		return -1, syscall.ENOENT
	}
	fd := d.nextFD
	d.nextFD++
	d.openFDs[fd] = true
	return fd, nil
}

func (d *fakeDriver) Close(fd int) error {
	if !d.openFDs[fd] {
		return syscall.EBADF
	}
	delete(d.openFDs, fd)
	d.streaming = false
	d.queued = false
	return d.closeErr
}

func (d *fakeDriver) Ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	if !d.openFDs[fd] {
		return syscall.EBADF
	}
	d.calls[req]++
	if f := d.failures[req]; f != nil {
		if err := f(d.calls[req]); err != nil {
			return err
		}
	}

	switch req {
	case vidiocQueryCap:
		caps := (*Capability)(arg)
		copy(caps.Driver[:], "fakecam")
		copy(caps.Card[:], "Fake Camera")
		copy(caps.BusInfo[:], "platform:fake")
		caps.Capabilities = CapVideoCapture | CapStreaming | CapDeviceCaps
		caps.DeviceCaps = CapVideoCapture | CapStreaming
	case vidiocSFmt:
		f := (*Format)(arg)
		if f.Type != BufTypeVideoCapture {
			return syscall.EINVAL
		}
		pix := f.Pix()
		if d.formats != nil && !d.supports(pix.PixelFormat) {
			pix.PixelFormat = d.formats[0]
		}
		if d.snap != nil {
			pix.Width, pix.Height = d.snap(pix.Width, pix.Height)
		}
		pix.Field = FieldNone
		if bpp := pix.PixelFormat.BytesPerPixel(); bpp > 0 {
			pix.BytesPerLine = pix.Width * uint32(bpp)
			pix.SizeImage = pix.BytesPerLine * pix.Height
		} else {
			pix.SizeImage = uint32(d.bufLen)
		}
	case vidiocReqBufs:
		r := (*RequestBuffers)(arg)
		if r.Memory != MemoryMmap {
			return syscall.EINVAL
		}
		if d.streaming || d.mapping != nil && r.Count == 0 {
			return syscall.EBUSY
		}
		if r.Count > 1 {
			r.Count = 1
		}
		d.queued = false
	case vidiocQueryBuf:
		b := (*Buffer)(arg)
		if b.Index != 0 {
			return syscall.EINVAL
		}
		b.Length = uint32(d.bufLen)
		b.SetOffset(0)
	case vidiocQBuf:
		b := (*Buffer)(arg)
		if b.Index != 0 || d.queued {
			return syscall.EINVAL
		}
		d.queued = true
	case vidiocDQBuf:
		b := (*Buffer)(arg)
		if !d.streaming || !d.queued || len(d.frames) == 0 {
			return syscall.EAGAIN
		}
		frame := d.frames[0]
		d.frames = d.frames[1:]
		copy(d.mapping, frame)
		d.sequence++
		b.Index = 0
		b.BytesUsed = uint32(len(frame))
		b.Sequence = d.sequence
		b.Length = uint32(d.bufLen)
		d.queued = false
	case vidiocStreamOn:
		if !d.queued {
			return syscall.EINVAL
		}
		d.streaming = true
	case vidiocStreamOff:
		d.streaming = false
		d.queued = false
	default:
		return syscall.ENOTTY
	}
	return nil
}

func (d *fakeDriver) supports(p PixelFormat) bool {
	for _, f := range d.formats {
		if f == p {
			return true
		}
	}
	return false
}

func (d *fakeDriver) Mmap(fd int, offset int64, length int) ([]byte, error) {
	if d.mmapErr != nil {
		return nil, d.mmapErr
	}
	if !d.openFDs[fd] || offset != 0 || length != d.bufLen {
		return nil, syscall.EINVAL
	}
	d.mmaps++
	d.mapping = make([]byte, length)
	return d.mapping, nil
}

func (d *fakeDriver) Munmap(b []byte) error {
	if b == nil {
		return syscall.EINVAL
	}
	d.munmaps++
	d.mapping = nil
	return d.munmapErr
}

func (d *fakeDriver) Poll(fd int, timeout time.Duration) (bool, error) {
	d.polls++
	if d.pollErr != nil {
		return false, d.pollErr
	}
	if d.neverReady {
		time.Sleep(timeout)
		return false, nil
	}
	if d.streaming && d.queued && len(d.frames) > 0 {
		return true, nil
	}
	time.Sleep(time.Millisecond)
	return false, nil
}
