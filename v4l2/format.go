package v4l2

import (
	"fmt"
	"strings"
)

// PixelFormat is a V4L2 fourcc pixel format code.
type PixelFormat uint32

const (
	PixFmtMJPEG PixelFormat = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	PixFmtRGB24 PixelFormat = 'R' | 'G'<<8 | 'B'<<16 | '3'<<24
	PixFmtYUYV  PixelFormat = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
)

// DefaultPixelFormat is what most UVC webcams deliver at 640x480.
const DefaultPixelFormat = PixFmtMJPEG

// FourCC builds a pixel format from its four character code.
func FourCC(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

func (p PixelFormat) String() string {
	b := []byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(p))
		}
	}
	return string(b)
}

// BytesPerPixel returns the size of one pixel for packed raw formats and 0
// for compressed ones.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixFmtRGB24:
		return 3
	case PixFmtYUYV:
		return 2
	}
	return 0
}

// ParsePixelFormat accepts the names used on the command line and in config
// files ("mjpeg", "rgb24", "yuyv") as well as any raw four character code.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mjpeg", "mjpg", "jpeg":
		return PixFmtMJPEG, nil
	case "rgb", "rgb24", "rgb3":
		return PixFmtRGB24, nil
	case "yuyv", "yuv422":
		return PixFmtYUYV, nil
	}
	if len(s) == 4 {
		return FourCC(s[0], s[1], s[2], s[3]), nil
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}
