// Package datasource provides media.DataSource implementations for local
// files and HTTP resources.
package datasource

import (
	"context"
	"strings"

	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
)

var log = logging.DefaultLogger.WithTag("datasource")

// Open a data source for uri. http:// and https:// URLs are fetched over HTTP;
// anything else, including file:// URLs, is opened as a local file.
func Open(ctx context.Context, uri string) (media.DataSource, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return OpenHTTP(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		return OpenFile(strings.TrimPrefix(uri, "file://"))
	default:
		return OpenFile(uri)
	}
}

// Status maps an Open error to the pipeline status reported to the host.
func Status(err error) media.PipelineStatus {
	switch errorCause(err) {
	case nil:
		return media.PipelineOK
	case ErrNotFound:
		return media.PipelineErrorURLNotFound
	default:
		return media.PipelineErrorNetwork
	}
}
