package datasource

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

// FileSource reads a local file. Reads are served in order on a dedicated
// loop.
type FileSource struct {
	file *os.File
	size int64

	loop      *media.TaskLoop
	closeOnce sync.Once
}

func OpenFile(filename string) (*FileSource, error) {
	log.Info("Opening file %s", filename)
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filename)
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat %s", filename)
	}
	if fi.IsDir() {
		file.Close()
		return nil, errors.Wrapf(ErrNotFound, "%s is a directory", filename)
	}

	// Demuxers read front to back, apart from seeks.
	if err := adviseSequential(file); err != nil {
		log.Debug("fadvise %s: %v", filename, err)
	}

	return &FileSource{
		file: file,
		size: fi.Size(),
		loop: media.NewTaskLoop("file:" + filename),
	}, nil
}

func (s *FileSource) Read(position int64, data []byte, done media.ReadCallback) {
	ok := s.loop.PostTask(func() {
		n, err := s.file.ReadAt(data, position)
		if err != nil && err != io.EOF {
			log.Error("Read %d bytes at %d from %s: %v", len(data), position, s.file.Name(), err)
			done(media.ReadError)
			return
		}
		done(n)
	})
	if !ok {
		done(media.ReadError)
	}
}

func (s *FileSource) Size() (int64, bool) {
	return s.size, true
}

func (s *FileSource) IsStreaming() bool {
	return false
}

func (s *FileSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.loop.Stop()
		err = s.file.Close()
	})
	return err
}
