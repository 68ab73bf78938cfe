package v4l2

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
)

// CaptureOneFrame runs a complete session against the device at path and
// leaves one frame in fb. timeout bounds each poll; ctx bounds the whole
// wait for the frame.
func CaptureOneFrame(ctx context.Context, path string, fb *FrameBuffer, timeout time.Duration, opts Options) (err error) {
	s := NewSession(opts)
	defer s.Release()

	if err := s.Open(path); err != nil {
		return err
	}
	if err := s.InitCapture(fb); err != nil {
		return err
	}
	if err := s.StartStreaming(); err != nil {
		return err
	}

	err = s.NextFrame(ctx, timeout)

	if errStop := s.StopStreaming(); errStop != nil {
		err = multierror.Append(err, errStop).ErrorOrNil()
	}
	if errClose := s.Close(); errClose != nil {
		err = multierror.Append(err, errClose).ErrorOrNil()
	}
	return err
}
