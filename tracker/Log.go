package tracker

import "github.com/rs/zerolog"

// Log emits every record as one structured log event
type Log struct {
	log zerolog.Logger
}

// NewLog creates a sink writing to the given logger
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

// Track logs the record's fields at info level
func (l *Log) Track(r Record) error {
	event := l.log.Info().Int64("frames", r.Frames).Int64("step", r.Step)
	for _, k := range r.Keys() {
		event = event.Float64(k, r.Fields[k])
	}
	event.Msg("metrics")
	return nil
}

// Close is a no-op
func (l *Log) Close() error { return nil }
