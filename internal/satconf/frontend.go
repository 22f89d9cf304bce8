package satconf

import (
	"sync"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// Frontend is a tuner device node and, while open, its device handle.
//
// The handle is opened on the first tune and kept until Release. Other
// SatConfs may borrow it as a Unicable group master port but never close it.
type Frontend struct {
	name   string
	path   string
	opener dvb.Opener

	mu  sync.Mutex
	dev dvb.Device
}

// NewFrontend describes a frontend. Nothing is opened until it is tuned.
func NewFrontend(name, path string, opener dvb.Opener) *Frontend {
	return &Frontend{name: name, path: path, opener: opener}
}

// Name returns the frontend name.
func (f *Frontend) Name() string { return f.name }

// Path returns the device node.
func (f *Frontend) Path() string { return f.path }

// Active returns the open device, if any.
func (f *Frontend) Active() (dvb.Device, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dev, f.dev != nil
}

func (f *Frontend) open() (dvb.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dev != nil {
		return f.dev, nil
	}
	dev, err := f.opener.Open(f.path)
	if err != nil {
		return nil, hardwareErr("opening "+f.path, err)
	}
	f.dev = dev
	return dev, nil
}

// close reports whether a handle was open.
func (f *Frontend) close() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dev == nil {
		return false, nil
	}
	dev := f.dev
	f.dev = nil
	if err := dev.Close(); err != nil {
		return true, hardwareErr("closing "+f.path, err)
	}
	return true, nil
}
