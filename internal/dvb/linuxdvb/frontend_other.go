//go:build !linux

package linuxdvb

import (
	"fmt"
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

func open(path string, _ time.Duration) (dvb.Device, error) {
	return nil, fmt.Errorf("opening %s: %w", path, dvb.ErrNotSupported)
}
