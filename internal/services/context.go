package services

import "context"

type contextKey string

const (
	ensembleIDKey contextKey = "ensemble_id"
	requestIDKey  contextKey = "request_id"
	jobKindKey    contextKey = "job_kind"
)

// WithEnsembleID stores the ensemble identifier for downstream logging.
func WithEnsembleID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ensembleIDKey, id)
}

// EnsembleIDFromContext extracts the ensemble identifier, if present.
func EnsembleIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ensembleIDKey).(int64)
	return id, ok
}

// WithRequestID stores a correlation identifier for downstream logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier, if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// WithJobKind stores the generation job kind (audio, part_book) for logging.
func WithJobKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, jobKindKey, kind)
}

// JobKindFromContext extracts the generation job kind, if present.
func JobKindFromContext(ctx context.Context) (string, bool) {
	kind, ok := ctx.Value(jobKindKey).(string)
	return kind, ok && kind != ""
}
