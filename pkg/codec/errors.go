package codec

import "errors"

var (
	ErrUnsupportedClass = errors.New("no codec for device class")
	ErrDuplicateVendor  = errors.New("vendor code already registered")
)
