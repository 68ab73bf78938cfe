package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"camsnap/config"
	"camsnap/snapshot"
	"camsnap/v4l2"
)

// maxDequeueRetries bounds how often a frame is retried after a failed
// VIDIOC_DQBUF before giving up.
const maxDequeueRetries = 3

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "camsnap: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintln(w, "Usage:")
		fmt.Fprintln(w, "  camsnap [flags] <video device> <output path> [frames]")
		fmt.Fprintln(w)
		io.WriteString(w, "The output path may contain a %d verb for the frame index.\n\n")
		fmt.Fprintln(w, "Flags:")
		fs.PrintDefaults()
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("camsnap", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = usage(fs)

	configPath := fs.String("config", config.DefaultPath(), "JSON config file")
	rgb := fs.Bool("rgb", false, "capture raw RGB24 instead of MJPEG")
	width := fs.Int("width", 0, "frame width (default from config, 640)")
	height := fs.Int("height", 0, "frame height (default from config, 480)")
	timeout := fs.Duration("timeout", 0, "wait per poll for the device (default from config, 2s)")
	skipOff := fs.Bool("skip-streamoff", false, "do not issue STREAMOFF when stopping (for webcams that hang on it)")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Device = fs.Arg(0)
	cfg.Output = fs.Arg(1)
	if fs.NArg() > 2 {
		n, err := strconv.Atoi(fs.Arg(2))
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid frame count %q", fs.Arg(2))
		}
		cfg.Frames = n
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rgb":
			if *rgb {
				cfg.PixelFormat = "rgb24"
			}
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "timeout":
			cfg.FrameTimeout = config.Duration(*timeout)
		case "skip-streamoff":
			cfg.SkipStreamOff = *skipOff
		case "debug":
			cfg.Debug = *debug
		}
	})
	_ = cfg.Validate()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := NewLogger(stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return capture(ctx, cfg, logger)
}

func capture(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pf, err := v4l2.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		return err
	}
	fb := v4l2.NewFrameBuffer(cfg.Width, cfg.Height, pf)
	defer fb.Release()

	s := v4l2.NewSession(v4l2.Options{Logger: logger, SkipStreamOff: cfg.SkipStreamOff})
	defer s.Release()

	if err := s.Open(cfg.Device); err != nil {
		return err
	}
	caps, err := s.Capabilities()
	if err != nil {
		return err
	}
	logger.Info("opened device", "device", cfg.Device, "card", caps.CardName(), "driver", caps.DriverName())
	if !caps.CanCapture() {
		return fmt.Errorf("%s does not support video capture", cfg.Device)
	}
	if !caps.CanStream() {
		logger.Warn("device does not report streaming capability", "device", cfg.Device)
	}

	if err := s.InitCapture(fb); err != nil {
		var mismatch *v4l2.FormatMismatch
		if errors.As(err, &mismatch) && mismatch.Requested.PixelFormat == mismatch.Accepted.PixelFormat {
			return fmt.Errorf("%w (try -width %d -height %d)", err, mismatch.Accepted.Width, mismatch.Accepted.Height)
		}
		return err
	}
	nf := s.Negotiated()
	logger.Info("format negotiated", "width", nf.Width, "height", nf.Height, "format", nf.PixelFormat, "field", nf.Field)

	if err := s.StartStreaming(); err != nil {
		return err
	}

	for i, retries := 0, 0; i < cfg.Frames; {
		frameCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.CaptureTimeout))
		err := s.NextFrame(frameCtx, time.Duration(cfg.FrameTimeout))
		cancel()
		if errors.Is(err, v4l2.ErrDequeue) && retries < maxDequeueRetries {
			retries++
			logger.Warn("dequeue failed, retrying", "frame", i, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		retries = 0

		path := snapshot.Path(cfg.Output, i, cfg.Frames)
		n, err := snapshot.Write(path, fb)
		if err != nil {
			return err
		}
		logger.Info("frame saved", "frame", i, "path", path, "size", humanize.Bytes(uint64(n)))
		i++
	}

	if err := s.StopStreaming(); err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}
	logger.Info("capture done", "frames", cfg.Frames)
	return nil
}
