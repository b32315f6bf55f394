//////////////////////////////////////////////////////////////////////////////
//
// Media errors
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import "errors"

var (
	ErrLoopStopped  = errors.New("message loop stopped")
	ErrNotSupported = errors.New("not supported") // "can't do" items
)
