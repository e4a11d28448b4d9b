package mysensors

import "errors"

// Domain errors for the MySensors gateway package.
var (
	// ErrNotConnected is returned when sending while no transport is connected.
	ErrNotConnected = errors.New("mysensors: gateway not connected")

	// ErrNilTransport is returned when Connect is called without a transport.
	ErrNilTransport = errors.New("mysensors: transport is nil")

	// ErrSensorTypeOutOfRange is returned for a presentation naming an unknown
	// sensor type. It usually means the frame was corrupted on the way in.
	ErrSensorTypeOutOfRange = errors.New("mysensors: sensor type out of range")

	// ErrRebootInProgress is returned when a reboot broadcast is already running.
	ErrRebootInProgress = errors.New("mysensors: reboot broadcast already running")

	// ErrWriteFailed is returned when the transport cannot write a frame.
	ErrWriteFailed = errors.New("mysensors: transport write failed")

	// ErrInvalidMessage is returned when a message cannot be sent as built.
	ErrInvalidMessage = errors.New("mysensors: invalid message")
)
