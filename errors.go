package alohaplay

import "errors"

var (
	ErrInvalidState  = errors.New("alohaplay: invalid state")
	ErrInvalidSeek   = errors.New("alohaplay: seek position out of range")
	ErrInvalidRate   = errors.New("alohaplay: invalid playback rate")
	ErrUnknownFormat = errors.New("alohaplay: unknown container format")
	ErrNoVideo       = errors.New("alohaplay: no video stream")
)
