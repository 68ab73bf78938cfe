package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camsnap/v4l2"
)

func TestRun_UsageWithoutArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Usage:")
	assert.Contains(t, stdout.String(), "-rgb")

	stdout.Reset()
	require.NoError(t, run([]string{"/dev/video0"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Usage:")
}

func TestRun_InvalidFrameCount(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cfg := filepath.Join(t.TempDir(), "config.json")
	err := run([]string{"-config", cfg, "/dev/video0", "out.jpg", "zero"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid frame count")
}

func TestRun_MissingDevice(t *testing.T) {
	var stdout, stderr bytes.Buffer
	dir := t.TempDir()
	err := run([]string{
		"-config", filepath.Join(dir, "config.json"),
		filepath.Join(dir, "video99"),
		filepath.Join(dir, "out.jpg"),
	}, &stdout, &stderr)
	require.ErrorIs(t, err, v4l2.ErrDeviceOpen)
}

func TestRun_UnknownPixelFormatInConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := []byte(`{"pixel_format": "not-a-format"}`)
	require.NoError(t, os.WriteFile(path, cfg, 0o644))

	err := run([]string{"-config", path, filepath.Join(dir, "video0"), "out.jpg"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pixel format")
}
