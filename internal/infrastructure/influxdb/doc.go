// Package influxdb records uplink metrics in InfluxDB v2.
//
// A Recorder is bound to one uplink target; the target and site are added
// to every point as default tags. Two measurements are written:
//
//   - uplink_pass: one point per submission pass, tagged by status
//   - uplink_batch: one point per hourly batch, tagged by outcome
//
// # Usage
//
//	rec, err := influxdb.Open(cfg.InfluxDB, influxdb.Tags{Site: "site-01", Target: "klhk"})
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//	rec.SetLogger(log)
//
//	rec.RecordPass(influxdb.PassMetrics{Batches: 2, Sent: 2, RowsSent: 120})
//
// Points are buffered and written in the background. Write failures go to
// the logger; they never reach the caller.
package influxdb
