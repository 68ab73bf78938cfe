package v4l2

import (
	"time"
	"unsafe"
)

// Backend performs the system calls a Session needs. DefaultBackend talks to
// the kernel; tests substitute a simulated driver.
type Backend interface {
	// Open opens path read-write and non-blocking.
	Open(path string) (fd int, err error)
	Close(fd int) error
	Ioctl(fd int, req uintptr, arg unsafe.Pointer) error
	Mmap(fd int, offset int64, length int) ([]byte, error)
	Munmap(b []byte) error
	// Poll waits until fd is readable. It reports false when the timeout
	// elapsed first.
	Poll(fd int, timeout time.Duration) (bool, error)
}
