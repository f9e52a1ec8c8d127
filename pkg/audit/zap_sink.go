package audit

import (
	"context"

	"go.uber.org/zap"

	"termpool/internal/model"
	"termpool/pkg/logger"
)

// ZapSink mirrors audit events into the structured log
type ZapSink struct{}

// NewZapSink creates a zap-backed sink
func NewZapSink() *ZapSink {
	return &ZapSink{}
}

func (s *ZapSink) Name() string {
	return "zap"
}

func (s *ZapSink) Write(_ context.Context, e *model.AuditEvent) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.Int64("seq", e.Seq),
	}
	if e.TaskID != "" {
		fields = append(fields, zap.String("task_id", e.TaskID))
	}
	if e.TerminalID != "" {
		fields = append(fields, zap.String("terminal_id", e.TerminalID))
	}
	if len(e.Fields) > 0 {
		fields = append(fields, zap.Any("fields", e.Fields))
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}

	switch e.Severity {
	case model.SeverityError:
		logger.Error(msg, fields...)
	case model.SeverityWarn:
		logger.Warn(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
	return nil
}
