package v4l2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// DefaultFrameTimeout is how long WaitForFrame waits for the device.
const DefaultFrameTimeout = 2 * time.Second

type State int

const (
	StateClosed State = iota
	StateOpened
	StateNegotiated
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpened:
		return "opened"
	case StateNegotiated:
		return "negotiated"
	case StateStreaming:
		return "streaming"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	// Backend defaults to DefaultBackend.
	Backend Backend
	// Logger receives debug records of every transition. nil discards them.
	Logger *slog.Logger
	// SkipStreamOff makes StopStreaming unmap without VIDIOC_STREAMOFF.
	// Some cheap UVC webcams hang on STREAMOFF until the module is reloaded;
	// closing the device stops the stream instead.
	SkipStreamOff bool
}

// Session owns one V4L2 device handle and, while streaming, one mapped
// kernel buffer. A Session is not safe for concurrent use.
type Session struct {
	id      string
	backend Backend
	log     *slog.Logger
	skipOff bool

	path string
	fd   int

	state      State
	negotiated PixFormat
	target     *FrameBuffer

	mapping []byte
	// queued is false after a failed requeue: the buffer is out of the
	// driver's rotation and no further frame can arrive.
	queued bool

	bad bool
}

func NewSession(opts Options) *Session {
	b := opts.Backend
	if b == nil {
		b = DefaultBackend
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		backend: b,
		log:     logger.With("session", id),
		skipOff: opts.SkipStreamOff,
		fd:      -1,
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Path() string   { return s.path }
func (s *Session) State() State   { return s.state }
func (s *Session) IsOpened() bool { return s.fd >= 0 }

// Good reports whether every step so far succeeded.
func (s *Session) Good() bool { return !s.bad }

// Bad reports whether any step failed. The flag is sticky.
func (s *Session) Bad() bool { return s.bad }

// Negotiated returns the format confirmed by the driver. It is zero until
// InitCapture succeeds.
func (s *Session) Negotiated() PixFormat { return s.negotiated }

func (s *Session) fail(kind error, op string, cause error) error {
	s.bad = true
	s.log.Debug("v4l2 step failed", "device", s.path, "op", op, "state", s.state, "error", cause)
	return &Error{Kind: kind, Op: op, Path: s.path, Err: cause}
}

func (s *Session) ioctl(req uintptr, arg unsafe.Pointer) error {
	return s.backend.Ioctl(s.fd, req, arg)
}

// Open opens the device node at path in read-write, non-blocking mode.
func (s *Session) Open(path string) error {
	if s.fd >= 0 {
		return s.fail(ErrDeviceOpen, "open", fmt.Errorf("session already holds %s", s.path))
	}
	fd, err := s.backend.Open(path)
	if err != nil {
		s.path = path
		return s.fail(ErrDeviceOpen, "open", err)
	}
	s.path = path
	s.fd = fd
	s.state = StateOpened
	s.log.Debug("device opened", "device", path, "fd", fd)
	return nil
}

// Close releases the device handle. Closing a closed session succeeds. A
// streaming session is stopped first.
func (s *Session) Close() error {
	if s.fd < 0 {
		return nil
	}
	var result *multierror.Error
	if s.state == StateStreaming {
		if err := s.StopStreaming(); err != nil {
			result = multierror.Append(result, err)
			s.dropMapping()
		}
	}
	err := s.backend.Close(s.fd)
	// The descriptor is gone even when close reports an error; forget it so
	// it is never closed twice.
	s.fd = -1
	s.state = StateClosed
	s.target = nil
	if err != nil {
		result = multierror.Append(result, s.fail(ErrDeviceClose, "close", err))
	} else {
		s.log.Debug("device closed", "device", s.path)
	}
	return result.ErrorOrNil()
}

// Capabilities queries the driver identity and capability flags.
func (s *Session) Capabilities() (Capability, error) {
	var caps Capability
	if s.fd < 0 {
		return caps, &Error{Kind: ErrNotOpen, Op: "query capabilities", Path: s.path}
	}
	if err := s.ioctl(vidiocQueryCap, unsafe.Pointer(&caps)); err != nil {
		return caps, fmt.Errorf("%s: VIDIOC_QUERYCAP: %w", s.path, err)
	}
	return caps, nil
}

// InitCapture negotiates the width, height and pixel format described by fb.
// The driver may coerce the request; any difference is reported as
// ErrFormatNegotiation wrapping a *FormatMismatch and the session stays
// Opened, so the caller can retry with a smaller size. On success fb becomes
// the destination of WaitForFrame.
func (s *Session) InitCapture(fb *FrameBuffer) error {
	switch s.state {
	case StateNegotiated, StateStreaming:
		s.log.Debug("capture already in progress", "device", s.path, "state", s.state)
		return &Error{Kind: ErrCaptureActive, Op: "init capture", Path: s.path}
	case StateClosed:
		return &Error{Kind: ErrNotOpen, Op: "init capture", Path: s.path}
	}
	if fb == nil {
		return s.fail(ErrFormatNegotiation, "init capture", errors.New("nil frame buffer"))
	}
	if fb.Width() <= 0 || fb.Height() <= 0 {
		return s.fail(ErrFormatNegotiation, "init capture",
			fmt.Errorf("invalid size %dx%d", fb.Width(), fb.Height()))
	}

	var f Format
	f.Type = BufTypeVideoCapture
	pix := f.Pix()
	pix.Width = uint32(fb.Width())
	pix.Height = uint32(fb.Height())
	pix.PixelFormat = fb.Format()
	pix.Field = FieldAny
	requested := *pix

	s.log.Debug("negotiating format", "device", s.path,
		"width", requested.Width, "height", requested.Height, "format", requested.PixelFormat)
	if err := s.ioctl(vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return s.fail(ErrFormatNegotiation, "VIDIOC_S_FMT", err)
	}

	accepted := *f.Pix()
	if accepted.PixelFormat != requested.PixelFormat ||
		accepted.Width != requested.Width || accepted.Height != requested.Height {
		return s.fail(ErrFormatNegotiation, "VIDIOC_S_FMT",
			&FormatMismatch{Requested: requested, Accepted: accepted})
	}

	s.negotiated = accepted
	s.target = fb
	s.state = StateNegotiated
	s.log.Debug("format negotiated", "device", s.path, "field", accepted.Field,
		"bytesperline", accepted.BytesPerLine, "sizeimage", accepted.SizeImage)
	return nil
}

// StartStreaming requests a single mmap buffer, maps it, queues it and turns
// the stream on.
func (s *Session) StartStreaming() error {
	switch s.state {
	case StateStreaming:
		return &Error{Kind: ErrCaptureActive, Op: "start streaming", Path: s.path}
	case StateNegotiated:
	default:
		return &Error{Kind: ErrInvalidState, Op: "start streaming", Path: s.path,
			Err: fmt.Errorf("session is %s", s.state)}
	}

	req := RequestBuffers{Count: 1, Type: BufTypeVideoCapture, Memory: MemoryMmap}
	if err := s.ioctl(vidiocReqBufs, unsafe.Pointer(&req)); err != nil {
		return s.fail(ErrBufferRequest, "VIDIOC_REQBUFS", err)
	}
	if req.Count < 1 {
		return s.fail(ErrBufferRequest, "VIDIOC_REQBUFS", errors.New("driver granted no buffers"))
	}

	buf := newMmapBuffer(0)
	if err := s.ioctl(vidiocQueryBuf, unsafe.Pointer(&buf)); err != nil {
		s.releaseBuffers()
		return s.fail(ErrBufferQuery, "VIDIOC_QUERYBUF", err)
	}

	data, err := s.backend.Mmap(s.fd, int64(buf.Offset()), int(buf.Length))
	if err != nil {
		s.releaseBuffers()
		return s.fail(ErrMemoryMap, "mmap", err)
	}
	s.mapping = data

	qbuf := newMmapBuffer(0)
	if err := s.ioctl(vidiocQBuf, unsafe.Pointer(&qbuf)); err != nil {
		s.unmapQuietly()
		return s.fail(ErrBufferEnqueue, "VIDIOC_QBUF", err)
	}

	typ := uint32(BufTypeVideoCapture)
	if err := s.ioctl(vidiocStreamOn, unsafe.Pointer(&typ)); err != nil {
		s.unmapQuietly()
		return s.fail(ErrStreamOn, "VIDIOC_STREAMON", err)
	}

	s.queued = true
	s.state = StateStreaming
	s.log.Debug("streaming", "device", s.path, "offset", buf.Offset(), "length", buf.Length)
	return nil
}

// WaitForFrame blocks until the device has a frame or timeout elapses, then
// copies the frame into the FrameBuffer given to InitCapture and hands the
// kernel buffer back to the driver. A timeout or poll failure returns
// ErrNotReady and changes nothing; the caller is expected to call again.
func (s *Session) WaitForFrame(timeout time.Duration) error {
	if s.state != StateStreaming {
		return &Error{Kind: ErrInvalidState, Op: "wait for frame", Path: s.path,
			Err: fmt.Errorf("session is %s", s.state)}
	}
	if !s.queued {
		return &Error{Kind: ErrRequeue, Op: "wait for frame", Path: s.path,
			Err: errors.New("buffer is not queued")}
	}
	if timeout <= 0 {
		timeout = DefaultFrameTimeout
	}

	ready, err := s.backend.Poll(s.fd, timeout)
	if err != nil {
		s.log.Debug("poll failed", "device", s.path, "error", err)
		return &Error{Kind: ErrNotReady, Op: "poll", Path: s.path, Err: err}
	}
	if !ready {
		return &Error{Kind: ErrNotReady, Op: "poll", Path: s.path}
	}

	buf := newMmapBuffer(0)
	if err := s.ioctl(vidiocDQBuf, unsafe.Pointer(&buf)); err != nil {
		// The mapping is still valid and the buffer is still owned by the
		// driver, so the caller may keep waiting.
		return s.fail(ErrDequeue, "VIDIOC_DQBUF", err)
	}

	used := int(buf.BytesUsed)
	var copyErr error
	switch {
	case buf.Index != 0:
		copyErr = s.fail(ErrDequeue, "VIDIOC_DQBUF", fmt.Errorf("unexpected buffer index %d", buf.Index))
	case used > len(s.mapping):
		copyErr = s.fail(ErrDequeue, "VIDIOC_DQBUF",
			fmt.Errorf("bytesused %d exceeds mapped length %d", used, len(s.mapping)))
	case used == 0:
		copyErr = &Error{Kind: ErrNotReady, Op: "VIDIOC_DQBUF", Path: s.path, Err: errors.New("empty frame")}
	default:
		if err := s.target.EnsureCapacity(used); err != nil {
			s.bad = true
			copyErr = err
			break
		}
		s.target.Zero()
		copy(s.target.Bytes(), s.mapping[:used])
	}

	qbuf := newMmapBuffer(buf.Index)
	if err := s.ioctl(vidiocQBuf, unsafe.Pointer(&qbuf)); err != nil {
		s.queued = false
		return s.fail(ErrRequeue, "VIDIOC_QBUF", err)
	}
	if copyErr != nil {
		return copyErr
	}
	s.log.Debug("frame captured", "device", s.path, "sequence", buf.Sequence, "bytes", used)
	return nil
}

// NextFrame calls WaitForFrame until a frame arrives, a real error occurs or
// ctx is done.
func (s *Session) NextFrame(ctx context.Context, timeout time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.WaitForFrame(timeout)
		if !errors.Is(err, ErrNotReady) {
			return err
		}
	}
}

// StopStreaming turns the stream off and unmaps the kernel buffer. It is a
// no-op when the session is not streaming. If STREAMOFF fails the session
// stays streaming and keeps its mapping; Close or Release still unmap it.
func (s *Session) StopStreaming() error {
	if s.state != StateStreaming {
		return nil
	}
	if !s.skipOff {
		typ := uint32(BufTypeVideoCapture)
		if err := s.ioctl(vidiocStreamOff, unsafe.Pointer(&typ)); err != nil {
			return s.fail(ErrStreamOff, "VIDIOC_STREAMOFF", err)
		}
	}

	err := s.backend.Munmap(s.mapping)
	s.mapping = nil
	s.queued = false
	s.state = StateOpened
	s.target = nil
	if err != nil {
		return s.fail(ErrUnmap, "munmap", err)
	}
	if !s.skipOff {
		s.releaseBuffers()
	}
	s.log.Debug("streaming stopped", "device", s.path)
	return nil
}

// Release stops streaming and closes the device, ignoring failures. It is
// the safety net for abandoned sessions, not a substitute for StopStreaming
// and Close.
func (s *Session) Release() {
	if err := s.Close(); err != nil {
		s.log.Debug("release: close failed", "device", s.path, "error", err)
	}
}

// dropMapping unmaps without STREAMOFF after a failed stop.
func (s *Session) dropMapping() {
	if s.mapping != nil {
		if err := s.backend.Munmap(s.mapping); err != nil {
			s.log.Debug("munmap failed", "device", s.path, "error", err)
		}
	}
	s.mapping = nil
	s.queued = false
	s.state = StateOpened
	s.target = nil
}

func (s *Session) unmapQuietly() {
	if err := s.backend.Munmap(s.mapping); err != nil {
		s.log.Debug("munmap failed", "device", s.path, "error", err)
	}
	s.mapping = nil
	s.releaseBuffers()
}

// releaseBuffers frees the kernel buffers. Failure only matters to the next
// REQBUFS, which reports it.
func (s *Session) releaseBuffers() {
	req := RequestBuffers{Count: 0, Type: BufTypeVideoCapture, Memory: MemoryMmap}
	if err := s.ioctl(vidiocReqBufs, unsafe.Pointer(&req)); err != nil {
		s.log.Debug("VIDIOC_REQBUFS(0) failed", "device", s.path, "error", err)
	}
}
