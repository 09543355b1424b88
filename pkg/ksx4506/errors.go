package ksx4506

import "errors"

var (
	ErrInvalidAddress = errors.New("invalid device address")
	ErrFrameTooShort  = errors.New("frame too short")
	ErrBadHeader      = errors.New("bad frame header")
	ErrBadLength      = errors.New("bad frame length")
	ErrChecksum       = errors.New("frame checksum mismatch")
	ErrDataTooLong    = errors.New("payload exceeds maximum length")
	ErrInvalidBCD     = errors.New("invalid BCD digit")
)
