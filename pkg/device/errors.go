package device

import "errors"

var (
	// ErrNotFound indicates a device was not found
	ErrNotFound = errors.New("device not found")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrNotConnected indicates the controller is not connected
	ErrNotConnected = errors.New("controller not connected")

	// ErrUnsupported indicates an operation is not supported by the device
	ErrUnsupported = errors.New("operation not supported")

	// ErrValidation indicates a state payload failed schema validation
	ErrValidation = errors.New("validation error")

	// ErrDeclined indicates the request is outside the device's capabilities
	ErrDeclined = errors.New("request declined")

	// ErrNoResponse indicates a control request was never confirmed
	ErrNoResponse = errors.New("no response from device")

	// ErrDeviceError indicates the device answered with a non-zero error code
	ErrDeviceError = errors.New("device reported error")

	// ErrExists indicates a device is already registered at the address
	ErrExists = errors.New("device already registered")

	// ErrInvalidMode indicates an unknown network mode
	ErrInvalidMode = errors.New("invalid network mode")
)
