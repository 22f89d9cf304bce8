// Package bridge puts the tuning coordinator on MQTT.
//
// Other processes on the site (recorders, EPG grabbers, a UI) drive the
// frontends by publishing commands; the bridge runs them through the
// satconf package and reports back:
//
//	satlink/{site}/frontend/{name}/command   tune | stop | status   (in)
//	satlink/{site}/frontend/{name}/ack       per-command replies    (out)
//	satlink/{site}/frontend/{name}/event     finished attempts      (out)
//	satlink/{site}/frontend/{name}/state     snapshot, retained     (out)
//	satlink/{site}/health                    bridge health, retained (out)
//
// A tune command that needs a rotor move is acked twice: "pending" with
// the grace period as soon as the move starts, then a final ack when the
// frontend locks or fails. Error codes are the satconf.Code* values, plus
// INVALID_COMMAND and UNKNOWN_ACTION for requests the bridge rejects.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package bridge
