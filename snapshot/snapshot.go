// Package snapshot turns captured frames into files.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"camsnap/v4l2"
)

var ErrNoImage = errors.New("frame cannot be converted to an image")

// Path expands an output template for frame index. A printf verb such as %d
// or %04d receives the index. Without one, and when more than one frame is
// captured, "-<index>" is inserted before the extension.
func Path(template string, index, total int) string {
	if strings.Contains(template, "%") {
		return fmt.Sprintf(template, index)
	}
	if total <= 1 {
		return template
	}
	ext := filepath.Ext(template)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(template, ext), index, ext)
}

// encodes reports whether path names an image container imaging can write.
func encodes(path string) bool {
	_, err := imaging.FormatFromFilename(path)
	return err == nil
}

// Write stores the frame in fb at path and returns the number of bytes
// written. RGB24 frames are encoded when path has an image extension
// (.png, .jpg, .bmp, .tif, .gif); everything else is written as captured.
func Write(path string, fb *v4l2.FrameBuffer) (int, error) {
	if fb.Len() == 0 {
		return 0, fmt.Errorf("%s: empty frame", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}

	if fb.Format() != v4l2.PixFmtRGB24 || !encodes(path) {
		if err := os.WriteFile(path, fb.Bytes(), 0o644); err != nil {
			return 0, err
		}
		return fb.Len(), nil
	}

	img, err := Image(fb)
	if err != nil {
		return 0, err
	}
	if err := imaging.Save(img, path); err != nil {
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return int(info.Size()), nil
}

// Image decodes the frame. RGB24 frames are repacked to NRGBA and MJPEG
// frames are decoded; other formats return ErrNoImage.
func Image(fb *v4l2.FrameBuffer) (image.Image, error) {
	switch fb.Format() {
	case v4l2.PixFmtRGB24:
		return rgb24ToNRGBA(fb.Bytes(), fb.Width(), fb.Height())
	case v4l2.PixFmtMJPEG:
		img, err := imaging.Decode(bytes.NewReader(fb.Bytes()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoImage, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: pixel format %s", ErrNoImage, fb.Format())
}

func rgb24ToNRGBA(src []byte, w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 || len(src) < w*h*3 {
		return nil, fmt.Errorf("%w: %d bytes is short for %dx%d RGB24", ErrNoImage, len(src), w, h)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < w*h*3; i, j = i+3, j+4 {
		img.Pix[j+0] = src[i+0]
		img.Pix[j+1] = src[i+1]
		img.Pix[j+2] = src[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img, nil
}
