package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/chunkgen/internal/progress"
)

// LogSink writes every event as a structured log line. Progress events go to
// debug so a long run does not flood the info stream.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("region", evt.Region),
			zap.Int64("completed", evt.Completed),
			zap.Int64("failed", evt.Failed),
			zap.Int64("total", evt.Total),
			zap.Int("pass", evt.Pass),
			zap.Float64("pct", evt.Percent()),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if ce := s.logger.Check(levelFor(evt.Stage), "progress event"); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageRunProgress:
		return zapcore.DebugLevel
	case progress.StageRunError:
		return zapcore.ErrorLevel
	case progress.StageRunStopped:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
