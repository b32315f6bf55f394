package demux

import (
	"github.com/pkg/errors"
)

var (
	errReadFailed   = errors.New("data source read failed")
	errReadAborted  = errors.New("data source read aborted")
	errInvalidSeek  = errors.New("invalid seek position")
	errNotSeekable  = errors.New("format does not support seeking")
	errNoSyncHeader = errors.New("missing stream header")
)
