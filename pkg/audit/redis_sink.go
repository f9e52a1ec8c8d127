package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"termpool/internal/model"
)

// RedisStreamSink appends audit events to a Redis stream for external consumers
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a stream sink; maxLen bounds the stream approximately
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string {
	return "redis-stream:" + s.stream
}

func (s *RedisStreamSink) Write(ctx context.Context, e *model.AuditEvent) error {
	values := map[string]interface{}{
		"id":          e.ID,
		"seq":         e.Seq,
		"type":        string(e.Type),
		"severity":    string(e.Severity),
		"time":        e.Time.UTC().Format(time.RFC3339Nano),
		"task_id":     e.TaskID,
		"terminal_id": e.TerminalID,
		"message":     e.Message,
	}
	if len(e.Fields) > 0 {
		data, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal event fields: %w", err)
		}
		values["fields"] = string(data)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", s.stream, err)
	}
	return nil
}
