// Package media holds the data model shared by the pipeline stages: encoded
// buffers, decoded video frames, timestamps, pipeline status and the message
// loops each stage runs on.
package media

import "github.com/lanikai/alohaplay/internal/logging"

var log = logging.DefaultLogger.WithTag("media")
