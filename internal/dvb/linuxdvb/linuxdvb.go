// Package linuxdvb drives a DVB-S frontend through the Linux DVB API v5.
//
// The frontend node (/dev/dvb/adapterN/frontendM) is opened read-write and
// non-blocking. Voltage, tone, DiseqC and toneburst map to the FE_SET_*
// and FE_DISEQC_* ioctls; Lock uses FE_SET_PROPERTY followed by polling
// FE_READ_STATUS.
package linuxdvb

import (
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// DefaultLockTimeout bounds Lock when the context carries no deadline.
const DefaultLockTimeout = 2 * time.Second

// statusPollInterval is how often Lock reads the frontend status.
const statusPollInterval = 50 * time.Millisecond

// Opener opens Linux DVB frontends.
type Opener struct {
	// LockTimeout overrides DefaultLockTimeout when non-zero.
	LockTimeout time.Duration
}

var _ dvb.Opener = Opener{}

// Open implements dvb.Opener.
func (o Opener) Open(path string) (dvb.Device, error) {
	timeout := o.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return open(path, timeout)
}
