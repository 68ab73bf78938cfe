//go:build !linux

package v4l2

import (
	"time"
	"unsafe"
)

var DefaultBackend Backend = unsupportedBackend{}

type unsupportedBackend struct{}

func (unsupportedBackend) Open(string) (int, error) { return -1, ErrUnsupported }
func (unsupportedBackend) Close(int) error          { return ErrUnsupported }
func (unsupportedBackend) Ioctl(int, uintptr, unsafe.Pointer) error {
	return ErrUnsupported
}
func (unsupportedBackend) Mmap(int, int64, int) ([]byte, error) { return nil, ErrUnsupported }
func (unsupportedBackend) Munmap([]byte) error                  { return ErrUnsupported }
func (unsupportedBackend) Poll(int, time.Duration) (bool, error) {
	return false, ErrUnsupported
}
