// Package journal keeps a history of tuning attempts in SQLite.
//
// A Recorder is registered as the satconf.Observer (or one of several,
// through the daemon's fan-out) and writes one row per finished attempt:
// the element chosen, the computed band and intermediate frequency, the
// final state, any error code, the rotor grace and the number of control
// commands sent. satctl reads the same table for diagnostics.
package journal
