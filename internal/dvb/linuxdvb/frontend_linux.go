//go:build linux

package linuxdvb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// ioctl requests from include/uapi/linux/dvb/frontend.h.
const (
	feDiseqcSendMasterCmd = 0x40076f3f // _IOW('o', 63, struct dvb_diseqc_master_cmd)
	feDiseqcSendBurst     = 0x6f41     // _IO('o', 65)
	feSetTone             = 0x6f42     // _IO('o', 66)
	feSetVoltage          = 0x6f43     // _IO('o', 67)
	feReadStatus          = 0x80046f45 // _IOR('o', 69, fe_status_t)
	feSetProperty         = 0x40106f52 // _IOW('o', 82, struct dtv_properties)
)

// enum fe_sec_voltage, fe_sec_tone_mode, fe_sec_mini_cmd.
const (
	secVoltage13  = 0
	secVoltage18  = 1
	secVoltageOff = 2

	secToneOn  = 0
	secToneOff = 1

	secMiniA = 0
	secMiniB = 1
)

const feHasLock = 0x10

// DTV property commands.
const (
	dtvTune           = 1
	dtvClear          = 2
	dtvFrequency      = 3
	dtvModulation     = 4
	dtvInversion      = 6
	dtvSymbolRate     = 8
	dtvInnerFEC       = 9
	dtvDeliverySystem = 17
)

const (
	sysDVBS  = 5
	sysDVBS2 = 6

	inversionAuto = 2
	fecAuto       = 9
)

var modulations = map[string]uint32{
	"":       0, // QPSK
	"QPSK":   0,
	"8PSK":   9,
	"16APSK": 10,
	"32APSK": 11,
}

var fecs = map[string]uint32{
	"":     fecAuto,
	"AUTO": fecAuto,
	"NONE": 0,
	"1/2":  1,
	"2/3":  2,
	"3/4":  3,
	"4/5":  4,
	"5/6":  5,
	"6/7":  6,
	"7/8":  7,
	"8/9":  8,
	"3/5":  10,
	"9/10": 11,
}

// diseqcMasterCmd mirrors struct dvb_diseqc_master_cmd.
type diseqcMasterCmd struct {
	msg [6]byte
	len uint8
}

// dtvProperty mirrors the packed struct dtv_property. The natural Go layout
// has no padding, so it matches byte for byte.
type dtvProperty struct {
	cmd      uint32
	reserved [3]uint32
	data     [56]byte
	result   int32
}

type dtvProperties struct {
	num   uint32
	props *dtvProperty
}

// frontend is an open Linux DVB frontend.
type frontend struct {
	path    string
	timeout time.Duration

	mu sync.Mutex
	fd int
}

func open(path string, timeout time.Duration) (dvb.Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &frontend{path: path, timeout: timeout, fd: fd}, nil
}

func (f *frontend) ioctlValue(req uint, value int, what string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return dvb.ErrPortClosed
	}
	if err := unix.IoctlSetInt(f.fd, req, value); err != nil {
		return fmt.Errorf("%s on %s: %w", what, f.path, err)
	}
	return nil
}

func (f *frontend) ioctlPtr(req uintptr, arg unsafe.Pointer, what string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return dvb.ErrPortClosed
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(f.fd), req, uintptr(arg))
	if errno != 0 {
		return fmt.Errorf("%s on %s: %w", what, f.path, errno)
	}
	return nil
}

// SetVoltage implements dvb.Port.
func (f *frontend) SetVoltage(v dvb.Voltage) error {
	var arg int
	switch v {
	case dvb.Voltage13:
		arg = secVoltage13
	case dvb.Voltage18:
		arg = secVoltage18
	case dvb.VoltageOff:
		arg = secVoltageOff
	default:
		return fmt.Errorf("%w: voltage %d", dvb.ErrInvalidParameter, int(v))
	}
	return f.ioctlValue(feSetVoltage, arg, "FE_SET_VOLTAGE")
}

// SetTone implements dvb.Port.
func (f *frontend) SetTone(t dvb.Tone) error {
	arg := secToneOff
	if t == dvb.ToneOn {
		arg = secToneOn
	}
	return f.ioctlValue(feSetTone, arg, "FE_SET_TONE")
}

// SendBurst implements dvb.Port.
func (f *frontend) SendBurst(b dvb.Burst) error {
	arg := secMiniA
	if b == dvb.BurstB {
		arg = secMiniB
	}
	return f.ioctlValue(feDiseqcSendBurst, arg, "FE_DISEQC_SEND_BURST")
}

// SendFrame implements dvb.Port.
func (f *frontend) SendFrame(frame dvb.Frame) error {
	if len(frame) == 0 || len(frame) > dvb.MaxFrameLen {
		return fmt.Errorf("%w: frame of %d bytes", dvb.ErrInvalidParameter, len(frame))
	}
	var cmd diseqcMasterCmd
	copy(cmd.msg[:], frame)
	cmd.len = uint8(len(frame))
	return f.ioctlPtr(feDiseqcSendMasterCmd, unsafe.Pointer(&cmd), "FE_DISEQC_SEND_MASTER_CMD")
}

func property(cmd, value uint32) dtvProperty {
	p := dtvProperty{cmd: cmd}
	*(*uint32)(unsafe.Pointer(&p.data[0])) = value
	return p
}

func (f *frontend) setProperties(props []dtvProperty) error {
	arg := dtvProperties{num: uint32(len(props)), props: &props[0]}
	return f.ioctlPtr(feSetProperty, unsafe.Pointer(&arg), "FE_SET_PROPERTY")
}

// Tune implements dvb.Device.
func (f *frontend) Tune(freq uint32, t dvb.Tuning) error {
	delsys := uint32(sysDVBS)
	if t.DeliverySystem == dvb.DVBS2 {
		delsys = sysDVBS2
	}
	mod, ok := modulations[strings.ToUpper(t.Modulation)]
	if !ok {
		return fmt.Errorf("%w: modulation %q", dvb.ErrInvalidParameter, t.Modulation)
	}
	fec, ok := fecs[strings.ToUpper(t.FEC)]
	if !ok {
		return fmt.Errorf("%w: fec %q", dvb.ErrInvalidParameter, t.FEC)
	}

	if err := f.setProperties([]dtvProperty{property(dtvClear, 0)}); err != nil {
		return err
	}
	props := []dtvProperty{
		property(dtvDeliverySystem, delsys),
		property(dtvFrequency, freq),
		property(dtvModulation, mod),
		property(dtvSymbolRate, t.SymbolRate),
		property(dtvInnerFEC, fec),
		property(dtvInversion, inversionAuto),
		property(dtvTune, 0),
	}
	return f.setProperties(props)
}

// Lock implements dvb.Device.
func (f *frontend) Lock(ctx context.Context, freq uint32, t dvb.Tuning) error {
	if err := f.Tune(freq, t); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		status, err := f.readStatus()
		if err != nil {
			return err
		}
		if status&feHasLock != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s at %d kHz: %w", dvb.ErrNoLock, f.path, freq, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (f *frontend) readStatus() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return 0, dvb.ErrPortClosed
	}
	status, err := unix.IoctlGetUint32(f.fd, feReadStatus)
	if err != nil {
		return 0, fmt.Errorf("FE_READ_STATUS on %s: %w", f.path, err)
	}
	return status, nil
}

// Close implements dvb.Port.
func (f *frontend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return dvb.ErrPortClosed
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}
