package dispatch

import (
	"context"
	"log/slog"
)

// LogDispatcher records deliveries to the log only. Used for local
// development and as the test double.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{
		logger: logger.With("module", "log_dispatcher"),
	}
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	d.logger.InfoContext(ctx, "Sent message to patient",
		"run_id", msg.RunID,
		"node_id", msg.NodeID,
		"patient_id", msg.PatientID(),
		"message", msg.Body)

	return nil
}
