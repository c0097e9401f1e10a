// Package notify delivers user-facing flow notifications. It only calls the
// sink; rendering belongs to the caller.
package notify

import "log/slog"

// Sink receives the one terminal notification per flow plus the mid-flow
// high-load warning.
type Sink interface {
	// HighLoad raises (on=true) or clears (on=false) the "system under high
	// load" warning.
	HighLoad(on bool)

	// Success reports the terminal success of a participation flow.
	Success(saleID, msg string)

	// Failure reports the terminal failure of a participation flow.
	Failure(saleID string, err error)

	// Warning reports a non-fatal anomaly, e.g. an accepted-amount mismatch.
	Warning(saleID, msg string)
}

// LogSink writes notifications to a slog logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) HighLoad(on bool) {
	if on {
		s.log.Warn("System under high load, operations may be delayed")
	} else {
		s.log.Info("High load condition cleared")
	}
}

func (s *LogSink) Success(saleID, msg string) {
	s.log.Info("Participation succeeded", "sale", saleID, "result", msg)
}

func (s *LogSink) Failure(saleID string, err error) {
	s.log.Error("Participation failed", "sale", saleID, "error", err)
}

func (s *LogSink) Warning(saleID, msg string) {
	s.log.Warn("Participation warning", "sale", saleID, "warning", msg)
}
