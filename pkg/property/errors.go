package property

import "errors"

var (
	// ErrInvalidKind indicates an unknown property kind
	ErrInvalidKind = errors.New("invalid property kind")

	// ErrConversion indicates a value could not be represented in the requested kind
	ErrConversion = errors.New("property conversion failed")
)
