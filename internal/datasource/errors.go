package datasource

import (
	"os"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("resource not found")
	ErrClosed   = errors.New("data source closed")
)

func errorCause(err error) error {
	if err == nil {
		return nil
	}
	cause := errors.Cause(err)
	if os.IsNotExist(cause) {
		return ErrNotFound
	}
	return cause
}
