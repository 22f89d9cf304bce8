// Package satconf coordinates the antenna hardware in front of a DVB-S
// frontend: LNB band and polarity lines, DiseqC switches, GOTOX/USALS
// rotors and EN50494/EN50607 Unicable routers.
//
// # Model
//
// A SatConf belongs to one Frontend and holds an ordered list of Elements.
// Each Element is one antenna position: an LNB profile plus an optional
// switch, rotor and Unicable device, and the networks reachable there. The
// SatConf keeps a session cache of the last hardware state it asserted so
// repeated tunes to the same position send nothing.
//
// # Tuning
//
// StartTuning runs the attempt as a state machine:
//
//	Selecting -> DeviceSequencing -> [Suspended -> DeviceSequencing]
//	          -> VoltageTone -> Handoff -> Locked | Failed
//
// A rotor that needs time to move suspends the attempt: a one-shot timer is
// armed and StartTuning returns StateSuspended without blocking. The timer
// callback re-acquires the state lock and resumes at the device that asked
// for the wait. StopTuning disarms the timer and discards the attempt.
//
// # Concurrency
//
// Every state transition runs under the Manager's state lock, which a host
// may share with the rest of its mutable state. Command timing sleeps (tens
// to a few hundred milliseconds) run with the lock held; rotor waits and the
// RF lock wait never do. Unicable groups have their own locks, and
// standalone Unicable senders share one process-wide mutex.
package satconf
