// Package influxdb writes tuning metrics to InfluxDB v2.
//
// Every finished attempt becomes a satlink_tuning point (lock rate, time
// to lock, DiseqC command count per satconf and element) and every rotor
// movement a satlink_rotor point. Writes are batched and never block the
// tuning path; asynchronous failures go to the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
package influxdb
