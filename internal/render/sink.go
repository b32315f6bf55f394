//////////////////////////////////////////////////////////////////////////////
//
// Frame sinks
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package render

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// CountingSink discards frames, keeping count. Useful for testing and for
// benchmarking the pipeline without a display.
type CountingSink struct {
	frames int
	last   time.Duration
	sync.Mutex
}

func (s *CountingSink) RenderFrame(frame *media.VideoFrame) error {
	s.Lock()
	defer s.Unlock()
	s.frames++
	s.last = frame.Timestamp()
	return nil
}

// Frames returns the number of frames rendered so far.
func (s *CountingSink) Frames() int {
	s.Lock()
	defer s.Unlock()
	return s.frames
}

// Last returns the timestamp of the most recent frame.
func (s *CountingSink) Last() time.Duration {
	s.Lock()
	defer s.Unlock()
	return s.last
}

// FileSink writes frames as raw planar YUV, or as a YUV4MPEG2 stream when the
// file name ends in .y4m.
type FileSink struct {
	file *os.File
	w    *bufio.Writer
	y4m  bool

	// Set by the first frame.
	format        media.FrameFormat
	width, height int
}

func NewFileSink(filename string) (*FileSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrap(err, "file sink")
	}

	return &FileSink{
		file: f,
		w:    bufio.NewWriter(f),
		y4m:  strings.EqualFold(filepath.Ext(filename), ".y4m"),
	}, nil
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	werr := s.w.Flush()
	if err := s.file.Close(); err != nil {
		return err
	}
	return werr
}

// RenderFrame appends frame to the file. Every frame must have the format
// and size of the first.
func (s *FileSink) RenderFrame(frame *media.VideoFrame) error {
	if s.width == 0 {
		s.format, s.width, s.height = frame.Format(), frame.Width(), frame.Height()
		if s.y4m {
			if err := s.writeHeader(frame); err != nil {
				return err
			}
		}
	} else if frame.Format() != s.format || frame.Width() != s.width || frame.Height() != s.height {
		return errors.Errorf("file sink: frame changed from %v %dx%d to %v %dx%d",
			s.format, s.width, s.height, frame.Format(), frame.Width(), frame.Height())
	}

	if s.y4m {
		if _, err := s.w.WriteString("FRAME\n"); err != nil {
			return err
		}
	}
	for p := 0; p < media.NumPlanes; p++ {
		plane, stride, n := frame.Plane(p), frame.Stride(p), frame.RowBytes(p)
		for row := 0; row < frame.Rows(p); row++ {
			if _, err := s.w.Write(plane[row*stride : row*stride+n]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FileSink) writeHeader(frame *media.VideoFrame) error {
	colorspace := "420jpeg"
	if frame.Format() == media.FormatYV16 {
		colorspace = "422"
	}
	rate := "F25:1"
	if d := frame.Duration(); d > 0 && d != media.NoTimestamp {
		rate = fmt.Sprintf("F%d:%d", int64(time.Second/time.Microsecond), int64(d/time.Microsecond))
	}
	_, err := fmt.Fprintf(s.w, "YUV4MPEG2 W%d H%d %s C%s\n", frame.Width(), frame.Height(), rate, colorspace)
	return err
}
