package datasource

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohaplay/internal/media"
)

func readSync(t *testing.T, src media.DataSource, position int64, size int) ([]byte, int) {
	buf := make([]byte, size)
	result := make(chan int, 1)
	src.Read(position, buf, func(n int) { result <- n })
	select {
	case n := <-result:
		if n < 0 {
			return nil, n
		}
		return buf[:n], n
	case <-time.After(5 * time.Second):
		t.Fatal("read timed out")
		return nil, 0
	}
}

func testPattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestFileSource(t *testing.T) {
	content := testPattern(1000)
	filename := filepath.Join(t.TempDir(), "clip.bin")
	require.NoError(t, os.WriteFile(filename, content, 0644))

	src, err := Open(context.Background(), "file://"+filename)
	require.NoError(t, err)
	defer src.Close()

	size, ok := src.Size()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), size)
	assert.False(t, src.IsStreaming())

	data, n := readSync(t, src, 100, 50)
	assert.Equal(t, 50, n)
	assert.Equal(t, content[100:150], data)

	// Short read at the end, then nothing.
	data, n = readSync(t, src, 990, 50)
	assert.Equal(t, 10, n)
	assert.Equal(t, content[990:], data)
	_, n = readSync(t, src, 1000, 50)
	assert.Equal(t, 0, n)

	require.NoError(t, src.Close())
	_, n = readSync(t, src, 0, 10)
	assert.Equal(t, media.ReadError, n)
}

func TestFileSourceNotFound(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.Equal(t, media.PipelineErrorURLNotFound, Status(err))
}

func TestHTTPSourceRanged(t *testing.T) {
	content := testPattern(3*httpBlockSize + 123)
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
		}
		http.ServeContent(w, r, "clip.ts", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL+"/clip.ts")
	require.NoError(t, err)
	defer src.Close()

	size, ok := src.Size()
	assert.True(t, ok)
	assert.Equal(t, int64(len(content)), size)
	assert.False(t, src.IsStreaming())

	// Spans the boundary between the first and second block.
	data, n := readSync(t, src, httpBlockSize-10, 20)
	assert.Equal(t, 20, n)
	assert.Equal(t, content[httpBlockSize-10:httpBlockSize+10], data)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))

	// Served from cache.
	data, _ = readSync(t, src, 5, 10)
	assert.Equal(t, content[5:15], data)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))

	data, n = readSync(t, src, int64(len(content)-3), 100)
	assert.Equal(t, 3, n)
	assert.Equal(t, content[len(content)-3:], data)
}

func TestHTTPSourceStreaming(t *testing.T) {
	content := testPattern(5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "none")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(content)
	}))
	defer srv.Close()

	src, err := OpenHTTP(context.Background(), srv.URL)
	require.NoError(t, err)
	defer src.Close()
	assert.True(t, src.IsStreaming())

	data, _ := readSync(t, src, 0, 100)
	assert.Equal(t, content[:100], data)
	data, _ = readSync(t, src, 200, 100)
	assert.Equal(t, content[200:300], data)

	// Backwards reopens.
	data, _ = readSync(t, src, 50, 10)
	assert.Equal(t, content[50:60], data)
}

func TestHTTPSourceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := OpenHTTP(context.Background(), srv.URL+"/missing.mp4")
	require.Error(t, err)
	assert.Equal(t, media.PipelineErrorURLNotFound, Status(err))
}
