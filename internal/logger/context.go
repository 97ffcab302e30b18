package logger

import "context"

// contextKey keeps workflow IDs from colliding with other packages' keys.
type contextKey struct{}

var workflowIDKey = contextKey{}

// WithWorkflowID stamps the context with the workflow being supervised so
// log lines deep in the executor can carry it.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WorkflowID returns the workflow ID from the context, or "" when unset.
func WorkflowID(ctx context.Context) string {
	id, _ := ctx.Value(workflowIDKey).(string)
	return id
}
