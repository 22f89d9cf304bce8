package dvb

import "errors"

// Domain errors for frontend access.
var (
	// ErrInvalidParameter is returned for values a frame or port cannot carry.
	ErrInvalidParameter = errors.New("dvb: invalid parameter")

	// ErrPortClosed is returned when a closed port is used.
	ErrPortClosed = errors.New("dvb: port closed")

	// ErrNotSupported is returned on platforms without a DVB API.
	ErrNotSupported = errors.New("dvb: not supported on this platform")

	// ErrNoLock is returned when the demodulator did not lock in time.
	ErrNoLock = errors.New("dvb: no signal lock")
)
