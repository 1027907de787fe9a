package service

import (
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
)

// LogSink emits run lifecycle events as structured log entries.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e domain.Event) {
	fields := []zap.Field{
		zap.String("run_id", e.RunID.String()),
		zap.String("stage", e.Stage),
		zap.Int("attempt", e.Attempt),
	}
	if e.Err != "" {
		fields = append(fields, zap.String("error", e.Err))
	}
	switch e.Kind {
	case domain.EventStageRetried:
		s.logger.Warn(string(e.Kind), fields...)
	case domain.EventRunFailed:
		s.logger.Error(string(e.Kind), fields...)
	default:
		s.logger.Info(string(e.Kind), fields...)
	}
}
