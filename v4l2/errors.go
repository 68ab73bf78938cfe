package v4l2

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceOpen        = errors.New("device open failed")
	ErrDeviceClose       = errors.New("device close failed")
	ErrNotOpen           = errors.New("device not open")
	ErrInvalidState      = errors.New("invalid session state")
	ErrFormatNegotiation = errors.New("format negotiation failed")
	ErrCaptureActive     = errors.New("capture already active")
	ErrBufferRequest     = errors.New("buffer request failed")
	ErrBufferQuery       = errors.New("buffer query failed")
	ErrMemoryMap         = errors.New("memory map failed")
	ErrBufferEnqueue     = errors.New("buffer enqueue failed")
	ErrStreamOn          = errors.New("stream on failed")
	ErrDequeue           = errors.New("dequeue failed")
	ErrRequeue           = errors.New("requeue failed")
	ErrStreamOff         = errors.New("stream off failed")
	ErrUnmap             = errors.New("unmap failed")
	ErrAllocation        = errors.New("frame allocation failed")
	ErrUnsupported       = errors.New("v4l2 not supported on this platform")

	// ErrNotReady means no frame arrived before the timeout. Callers retry.
	ErrNotReady = errors.New("frame not ready")
)

// Error describes a failed step of a capture session. It matches both its
// Kind sentinel and the underlying cause with errors.Is.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FormatMismatch is returned (wrapped in ErrFormatNegotiation) when the
// driver coerced the requested format. Accepted is what the driver offered,
// so callers can retry with it.
type FormatMismatch struct {
	Requested PixFormat
	Accepted  PixFormat
}

func (m *FormatMismatch) Error() string {
	if m.Requested.PixelFormat != m.Accepted.PixelFormat {
		return fmt.Sprintf("driver does not support %s, offered %s", m.Requested.PixelFormat, m.Accepted.PixelFormat)
	}
	return fmt.Sprintf("driver rejected %dx%d, offered %dx%d",
		m.Requested.Width, m.Requested.Height, m.Accepted.Width, m.Accepted.Height)
}
