//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for Player
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package alohaplay

import (
	"time"

	"github.com/pkg/errors"
)

// Decoding engines.
const (
	EngineSoftware = "software"
	EngineOMX      = "omx"
)

type Config struct {
	// Media to play: a file name, file:// URL, or http(s):// URL.
	URL string

	// Container format tag. Guessed from the URL when empty.
	Format string

	// Where decoded frames go. Empty discards them; a file name ending in
	// .y4m gets a YUV4MPEG2 stream, anything else raw planar YUV.
	Output string

	// Engine is EngineSoftware (default) or EngineOMX.
	Engine string

	// DirectRendering lets the software engine decode into renderer frames.
	DirectRendering bool

	StartTime    time.Duration
	PlaybackRate float64

	// Paused leaves the player paused on the first frame after Start.
	Paused bool

	// MonitorAddress, if set, serves status at http://MonitorAddress/status.
	MonitorAddress string
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("alohaplay: no URL")
	}
	if c.Engine == "" {
		c.Engine = EngineSoftware
	}
	switch c.Engine {
	case EngineSoftware, EngineOMX:
	default:
		return errors.Errorf("alohaplay: unknown engine %q", c.Engine)
	}
	if c.PlaybackRate == 0 {
		c.PlaybackRate = 1
	}
	if c.PlaybackRate < 0 {
		return errors.Wrapf(ErrInvalidRate, "%v", c.PlaybackRate)
	}
	if c.StartTime < 0 {
		return errors.Wrapf(ErrInvalidSeek, "start time %v", c.StartTime)
	}
	return nil
}
