package main

import (
	"context"
	"time"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/logging"
	"github.com/nerrad567/logix-uplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/logix-uplink/internal/uplink"
)

// passPublisher is the part of mqtt.Client the pass publisher needs.
type passPublisher interface {
	PublishPass(report any) error
}

// mqttPassPublisher publishes every pass report on the target's pass topic.
// Publish failures are logged and dropped.
type mqttPassPublisher struct {
	client passPublisher
	log    *logging.Logger
}

func (p *mqttPassPublisher) ObservePass(_ context.Context, report uplink.PassReport) {
	if err := p.client.PublishPass(report); err != nil {
		p.log.Warn("publishing pass report", "pass_id", report.ID, "error", err)
	}
}

// metricsWriter is the part of influxdb.Recorder the observer needs.
type metricsWriter interface {
	RecordPass(m influxdb.PassMetrics)
	RecordBatch(m influxdb.BatchMetrics)
}

// influxPassRecorder writes one uplink_pass point and one uplink_batch
// point per batch.
type influxPassRecorder struct {
	client metricsWriter
}

func (r *influxPassRecorder) ObservePass(_ context.Context, report uplink.PassReport) {
	for _, b := range report.Batches {
		r.client.RecordBatch(batchMetrics(b, report.FinishedAt))
	}
	r.client.RecordPass(passMetrics(report))
}

func passMetrics(report uplink.PassReport) influxdb.PassMetrics {
	return influxdb.PassMetrics{
		Pending:    report.Pending,
		Batches:    len(report.Batches),
		Sent:       report.Sent,
		Retried:    report.Retried,
		Unresolved: report.Unresolved,
		Resolved:   report.Resolved,
		RowsSent:   report.RowsSent,
		Deleted:    report.Deleted,
		Duration:   report.Duration(),
		Failed:     report.Error != "",
		At:         report.FinishedAt,
	}
}

func batchMetrics(b uplink.Result, at time.Time) influxdb.BatchMetrics {
	return influxdb.BatchMetrics{
		Outcome:         string(b.Outcome),
		Rows:            b.Rows,
		Attempts:        b.Attempts,
		DuplicateRounds: b.DuplicateRounds,
		Deleted:         b.Deleted,
		Sent:            b.Sent,
		At:              at,
	}
}

// triggerer queues a manual pass.
type triggerer interface {
	Trigger() error
}

// commandHandler queues a manual pass for every run command.
func commandHandler(t triggerer, log *logging.Logger) mqtt.CommandHandler {
	return func(cmd mqtt.Command) error {
		if err := t.Trigger(); err != nil {
			return err
		}
		log.Info("manual pass queued", "source", "mqtt", "action", cmd.Action)
		return nil
	}
}
