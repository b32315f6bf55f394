package demux

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// sourceReader adapts an asynchronous media.DataSource to the blocking
// io.ReadSeeker that container parsers expect. Only the demuxer loop reads;
// abort may be called from anywhere to release a blocked read.
type sourceReader struct {
	source media.DataSource
	host   media.Host

	position int64
	failed   bool

	// Reads land in scratch, so that a read completing after abort never
	// touches the caller's slice.
	scratch []byte
	result  chan int

	aborted   chan struct{}
	abortOnce sync.Once
}

func newSourceReader(source media.DataSource, host media.Host) *sourceReader {
	return &sourceReader{
		source:  source,
		host:    host,
		result:  make(chan int, 1),
		aborted: make(chan struct{}),
	}
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if r.failed {
		return 0, errReadFailed
	}
	select {
	case <-r.aborted:
		return 0, errReadAborted
	default:
	}
	if len(p) == 0 {
		return 0, nil
	}
	if size, ok := r.source.Size(); ok && r.position >= size {
		return 0, io.EOF
	}

	if cap(r.scratch) < len(p) {
		r.scratch = make([]byte, len(p))
	}
	scratch := r.scratch[:len(p)]
	r.source.Read(r.position, scratch, r.signal)

	var n int
	select {
	case n = <-r.result:
	case <-r.aborted:
		// The pending read may still complete into scratch.
		r.scratch = nil
		return 0, errReadAborted
	}

	if n == media.ReadError {
		r.failed = true
		r.host.SetError(media.PipelineErrorRead)
		return 0, errReadFailed
	}
	if n == 0 {
		return 0, io.EOF
	}
	copy(p, scratch[:n])
	r.position += int64(n)
	return n, nil
}

func (r *sourceReader) signal(n int) {
	select {
	case r.result <- n:
	default:
		log.Warn("Dropped unexpected read completion (%d bytes)", n)
	}
}

func (r *sourceReader) Seek(offset int64, whence int) (int64, error) {
	var position int64
	switch whence {
	case io.SeekStart:
		position = offset
	case io.SeekCurrent:
		position = r.position + offset
	case io.SeekEnd:
		size, ok := r.source.Size()
		if !ok {
			return r.position, errors.Wrap(errInvalidSeek, "size unknown")
		}
		position = size + offset
	default:
		return r.position, errors.Wrapf(errInvalidSeek, "whence %d", whence)
	}
	if err := r.setPosition(position); err != nil {
		return r.position, err
	}
	return r.position, nil
}

// setPosition rejects positions before the start or past the end of the
// source. Seeking to exactly the end is allowed; the next read returns EOF.
func (r *sourceReader) setPosition(position int64) error {
	if position < 0 {
		return errors.Wrapf(errInvalidSeek, "%d", position)
	}
	if size, ok := r.source.Size(); ok && position > size {
		return errors.Wrapf(errInvalidSeek, "%d past end %d", position, size)
	}
	r.position = position
	return nil
}

// abort fails the blocked read, if any, and every later read, without
// reporting an error to the host.
func (r *sourceReader) abort() {
	r.abortOnce.Do(func() {
		close(r.aborted)
	})
}
