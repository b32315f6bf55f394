package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"

	"github.com/lanikai/alohaplay/internal/media"
)

const (
	// Range requests fetch whole blocks of this size.
	httpBlockSize = 64 * 1024

	// Number of blocks kept in memory. Demuxers revisit recent data when
	// probing and seeking.
	httpCacheBlocks = 64

	httpTimeout = 30 * time.Second
)

// HTTPSource reads an HTTP resource. Servers that accept byte ranges are read
// block by block through a small LRU cache; anything else is read as a
// sequential stream and reported as streaming.
type HTTPSource struct {
	url    string
	client *req.Client

	// Sequential reads, without a timeout and with the body left unread.
	streamClient *req.Client

	ctx    context.Context
	cancel context.CancelFunc

	size      int64
	sizeKnown bool
	ranged    bool

	loop      *media.TaskLoop
	closeOnce sync.Once

	// Owned by loop.
	cache   *lru.Cache
	body    io.ReadCloser
	bodyPos int64
}

func OpenHTTP(ctx context.Context, url string) (*HTTPSource, error) {
	log.Info("Opening %s", url)
	client := req.C().SetTimeout(httpTimeout)

	resp, err := client.R().SetContext(ctx).Head(url)
	if err != nil {
		return nil, errors.Wrapf(err, "HEAD %s", url)
	}
	if err := checkStatus(resp.StatusCode, url); err != nil {
		return nil, err
	}

	s := &HTTPSource{
		url:          url,
		client:       client,
		streamClient: req.C().DisableAutoReadResponse(),
		cache:        lru.New(httpCacheBlocks),
		loop:         media.NewTaskLoop("http:" + url),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if resp.ContentLength >= 0 {
		s.size = resp.ContentLength
		s.sizeKnown = true
	}
	s.ranged = s.sizeKnown && strings.Contains(resp.Header.Get("Accept-Ranges"), "bytes")
	log.Debug("%s: size=%d known=%v ranged=%v", url, s.size, s.sizeKnown, s.ranged)
	return s, nil
}

func checkStatus(code int, url string) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return errors.Wrapf(ErrNotFound, "%s: HTTP %d", url, code)
	case code >= 400:
		return errors.Errorf("%s: HTTP %d", url, code)
	}
	return nil
}

func (s *HTTPSource) Read(position int64, data []byte, done media.ReadCallback) {
	ok := s.loop.PostTask(func() {
		var n int
		var err error
		if s.ranged {
			n, err = s.readRanged(position, data)
		} else {
			n, err = s.readStream(position, data)
		}
		if err != nil {
			log.Error("Read %d bytes at %d from %s: %v", len(data), position, s.url, err)
			done(media.ReadError)
			return
		}
		done(n)
	})
	if !ok {
		done(media.ReadError)
	}
}

func (s *HTTPSource) readRanged(position int64, data []byte) (int, error) {
	n := 0
	for n < len(data) && position < s.size {
		index := position / httpBlockSize
		block, err := s.block(index)
		if err != nil {
			return 0, err
		}
		offset := int(position - index*httpBlockSize)
		if offset >= len(block) {
			// Short block from the server; treat as end of data.
			break
		}
		c := copy(data[n:], block[offset:])
		n += c
		position += int64(c)
	}
	return n, nil
}

func (s *HTTPSource) block(index int64) ([]byte, error) {
	if v, ok := s.cache.Get(index); ok {
		return v.([]byte), nil
	}

	start := index * httpBlockSize
	end := start + httpBlockSize
	if end > s.size {
		end = s.size
	}
	resp, err := s.client.R().
		SetContext(s.ctx).
		SetHeader("Range", fmt.Sprintf("bytes=%d-%d", start, end-1)).
		Get(s.url)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s block %d", s.url, index)
	}
	if resp.StatusCode != http.StatusPartialContent {
		return nil, errors.Errorf("%s: expected HTTP 206 for range %d-%d, got %d", s.url, start, end-1, resp.StatusCode)
	}
	block, err := resp.ToBytes()
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s block %d", s.url, index)
	}
	s.cache.Add(index, block)
	return block, nil
}

// readStream serves reads from a single GET response. Reading backwards
// reopens the resource.
func (s *HTTPSource) readStream(position int64, data []byte) (int, error) {
	if s.body == nil || position < s.bodyPos {
		if err := s.reopen(); err != nil {
			return 0, err
		}
	}
	if skip := position - s.bodyPos; skip > 0 {
		skipped, err := io.CopyN(io.Discard, s.body, skip)
		s.bodyPos += skipped
		if err == io.EOF {
			return 0, nil
		} else if err != nil {
			return 0, errors.Wrap(err, "skip")
		}
	}

	n, err := io.ReadFull(s.body, data)
	s.bodyPos += int64(n)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}

func (s *HTTPSource) reopen() error {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
	resp, err := s.streamClient.R().SetContext(s.ctx).Get(s.url)
	if err != nil {
		return errors.Wrapf(err, "GET %s", s.url)
	}
	if err := checkStatus(resp.StatusCode, s.url); err != nil {
		resp.Body.Close()
		return err
	}
	s.body = resp.Body
	s.bodyPos = 0
	return nil
}

func (s *HTTPSource) Size() (int64, bool) {
	return s.size, s.sizeKnown
}

func (s *HTTPSource) IsStreaming() bool {
	return !s.ranged
}

func (s *HTTPSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.loop.Stop()
		if s.body != nil {
			s.body.Close()
		}
	})
	return nil
}
