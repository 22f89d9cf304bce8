// Package dvb defines the satellite frontend vocabulary shared by the
// antenna coordinator and the frontend drivers.
//
// It contains:
//   - Tuning: a target transponder (frequency, polarisation, modulation)
//   - Voltage, Tone and Burst: the LNB control line states
//   - Frame: a DiseqC master command with its builders
//   - Port and Device: the control and RF lock interfaces a driver implements
//
// Frequencies are in kHz throughout.
//
// Drivers:
//   - linuxdvb: Linux DVB API v5 ioctls on /dev/dvb/adapterN/frontendM
//   - simdvb: an in-memory frontend backing the simulated driver and tests
package dvb
