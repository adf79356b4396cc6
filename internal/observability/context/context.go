package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	taskIDKey    ctxKey = "task_id"
	accountIDKey ctxKey = "account_id"
	docTypeKey   ctxKey = "doc_type"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey)
}

// WithTaskID marks ctx as belonging to an export task so its log lines are
// also written to the task log.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return withString(ctx, taskIDKey, taskID)
}

func TaskIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, taskIDKey)
}

func WithAccount(ctx context.Context, accountID, docType string) context.Context {
	ctx = withString(ctx, accountIDKey, accountID)
	return withString(ctx, docTypeKey, docType)
}

func AccountFromContext(ctx context.Context) (string, string) {
	return stringFrom(ctx, accountIDKey), stringFrom(ctx, docTypeKey)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
