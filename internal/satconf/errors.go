package satconf

import "errors"

// Domain errors for the satconf package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, satconf.ErrNotConfigured) {
//	    // no antenna position covers the requested network
//	}
var (
	// ErrConfigInvalid is returned for out-of-range ports, SCR ids or
	// transponder indices.
	ErrConfigInvalid = errors.New("satconf: invalid configuration")

	// ErrHardwareIO is returned when the control port cannot be opened or
	// a voltage, tone or DiseqC write fails.
	ErrHardwareIO = errors.New("satconf: hardware i/o failed")

	// ErrNoGroupMaster is returned when a Unicable group has no master.
	ErrNoGroupMaster = errors.New("satconf: no master for unicable group")

	// ErrNotConfigured is returned when no element covers the network.
	ErrNotConfigured = errors.New("satconf: not configured for this position")

	// ErrAttemptCancelled is reported for attempts stopped before completion.
	ErrAttemptCancelled = errors.New("satconf: tuning attempt cancelled")

	// ErrNotFound is returned for unknown satconf or element names.
	ErrNotFound = errors.New("satconf: not found")

	// ErrClosed is returned after the Manager has been closed.
	ErrClosed = errors.New("satconf: manager closed")
)

// Error codes reported in MQTT acks and the tuning journal.
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeHardwareIO    = "HARDWARE_IO"
	CodeNoGroupMaster = "NO_GROUP_MASTER"
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeCancelled     = "CANCELLED"
	CodeNotFound      = "NOT_FOUND"
	CodeClosed        = "CLOSED"
	CodeInternal      = "INTERNAL"
)

// ErrorCode maps err to one of the Code constants. A nil error has no code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigInvalid):
		return CodeConfigInvalid
	case errors.Is(err, ErrHardwareIO):
		return CodeHardwareIO
	case errors.Is(err, ErrNoGroupMaster):
		return CodeNoGroupMaster
	case errors.Is(err, ErrNotConfigured):
		return CodeNotConfigured
	case errors.Is(err, ErrAttemptCancelled):
		return CodeCancelled
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrClosed):
		return CodeClosed
	default:
		return CodeInternal
	}
}
