package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap/zapcore"
)

const (
	TaskIDField = "task_id"

	taskLogTTL        = 7 * 24 * time.Hour
	taskLogWriteLimit = 2 * time.Second
	memoryTaskLimit   = 1000
)

// TaskLogEntry is one line of an export task log.
type TaskLogEntry struct {
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type TaskLogSink interface {
	Append(ctx context.Context, taskID string, entry TaskLogEntry) error
	Read(ctx context.Context, taskID string) ([]TaskLogEntry, error)
}

type TaskSinkParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

// NewTaskSink returns a Redis-backed sink, or an in-process one when Redis is not configured.
func NewTaskSink(p TaskSinkParams) TaskLogSink {
	if p.Redis != nil {
		return NewRedisTaskSink(p.Redis)
	}
	return NewMemoryTaskSink()
}

func taskLogKey(taskID string) string {
	return fmt.Sprintf("logs:%s", taskID)
}

type RedisTaskSink struct {
	client *redis.Client
}

func NewRedisTaskSink(client *redis.Client) *RedisTaskSink {
	return &RedisTaskSink{client: client}
}

func (s *RedisTaskSink) Append(ctx context.Context, taskID string, entry TaskLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := taskLogKey(taskID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, taskLogTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisTaskSink) Read(ctx context.Context, taskID string) ([]TaskLogEntry, error) {
	raw, err := s.client.LRange(ctx, taskLogKey(taskID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]TaskLogEntry, 0, len(raw))
	for _, item := range raw {
		var entry TaskLogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemoryTaskSink keeps the most recent lines per task in process memory.
type MemoryTaskSink struct {
	mu    sync.Mutex
	tasks map[string][]TaskLogEntry
}

func NewMemoryTaskSink() *MemoryTaskSink {
	return &MemoryTaskSink{tasks: map[string][]TaskLogEntry{}}
}

func (s *MemoryTaskSink) Append(_ context.Context, taskID string, entry TaskLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := append(s.tasks[taskID], entry)
	if len(lines) > memoryTaskLimit {
		lines = lines[len(lines)-memoryTaskLimit:]
	}
	s.tasks[taskID] = lines
	return nil
}

func (s *MemoryTaskSink) Read(_ context.Context, taskID string) ([]TaskLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TaskLogEntry(nil), s.tasks[taskID]...), nil
}

// taskCore forwards entries that carry a task_id field to a TaskLogSink.
// Sink failures are swallowed.
type taskCore struct {
	zapcore.LevelEnabler
	sink   TaskLogSink
	taskID string
}

func NewTaskCore(level zapcore.LevelEnabler, sink TaskLogSink) zapcore.Core {
	return &taskCore{LevelEnabler: level, sink: sink}
}

func (c *taskCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	if taskID := taskIDFromFields(fields); taskID != "" {
		clone.taskID = taskID
	}
	return &clone
}

func (c *taskCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *taskCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	taskID := c.taskID
	if id := taskIDFromFields(fields); id != "" {
		taskID = id
	}
	if taskID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), taskLogWriteLimit)
	defer cancel()
	_ = c.sink.Append(ctx, taskID, TaskLogEntry{
		Timestamp: ent.Time.UTC().Format(time.RFC3339Nano),
		Level:     ent.Level.CapitalString(),
		Name:      ent.LoggerName,
		Message:   ent.Message,
	})
	return nil
}

func (c *taskCore) Sync() error {
	return nil
}

func taskIDFromFields(fields []zapcore.Field) string {
	for _, f := range fields {
		if f.Key == TaskIDField && f.Type == zapcore.StringType {
			return f.String
		}
	}
	return ""
}
