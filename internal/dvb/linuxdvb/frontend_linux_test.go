//go:build linux

package linuxdvb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"
)

func TestStructLayout(t *testing.T) {
	if got := unsafe.Sizeof(diseqcMasterCmd{}); got != 7 {
		t.Errorf("sizeof(dvb_diseqc_master_cmd) = %d, want 7", got)
	}
	if got := unsafe.Sizeof(dtvProperty{}); got != 76 {
		t.Errorf("sizeof(dtv_property) = %d, want 76", got)
	}
	if unsafe.Sizeof(uintptr(0)) == 8 {
		if got := unsafe.Sizeof(dtvProperties{}); got != 16 {
			t.Errorf("sizeof(dtv_properties) = %d, want 16", got)
		}
	}
}

func TestProperty(t *testing.T) {
	p := property(dtvFrequency, 1127000)
	if p.cmd != dtvFrequency {
		t.Errorf("cmd = %d, want %d", p.cmd, dtvFrequency)
	}
	if got := *(*uint32)(unsafe.Pointer(&p.data[0])); got != 1127000 {
		t.Errorf("data = %d, want 1127000", got)
	}
}

func TestOpen_MissingNode(t *testing.T) {
	_, err := Opener{}.Open(filepath.Join(t.TempDir(), "frontend0"))
	if err == nil {
		t.Fatal("Open() expected error for missing node")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() error = %v, want not-exist", err)
	}
}
