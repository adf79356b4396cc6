package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTaskCoreWritesOnlyTaskScopedEntries(t *testing.T) {
	sink := NewMemoryTaskSink()
	log := zap.New(NewTaskCore(zapcore.InfoLevel, sink)).Named("sync")

	log.Info("not scoped")
	log.With(zap.String(TaskIDField, "task-1")).Info("document.submitted")
	log.Warn("inline", zap.String(TaskIDField, "task-2"))
	log.With(zap.String(TaskIDField, "task-1")).Debug("below level")

	first, err := sink.Read(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "document.submitted", first[0].Message)
	assert.Equal(t, "INFO", first[0].Level)
	assert.Equal(t, "sync", first[0].Name)

	second, err := sink.Read(context.Background(), "task-2")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "WARN", second[0].Level)
}

func TestMemoryTaskSinkBounded(t *testing.T) {
	sink := NewMemoryTaskSink()
	for i := 0; i < memoryTaskLimit+10; i++ {
		require.NoError(t, sink.Append(context.Background(), "t", TaskLogEntry{Message: "x"}))
	}
	lines, err := sink.Read(context.Background(), "t")
	require.NoError(t, err)
	assert.Len(t, lines, memoryTaskLimit)
}
