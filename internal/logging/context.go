package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldParticipant is the standardized structured logging key for participant identifiers.
	FieldParticipant = "participant_id"
	// FieldSession is the standardized structured logging key for session identifiers.
	FieldSession = "session_id"
	// FieldTask is the standardized structured logging key for task names.
	FieldTask = "task"
	// FieldTrial is the standardized structured logging key for 1-based trial numbers.
	FieldTrial = "trial"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags notable lifecycle events for log filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing remediation hint alongside errors.
	FieldErrorHint = "error_hint"
)

type contextKey string

const (
	participantKey   contextKey = "participant"
	sessionKey       contextKey = "session"
	taskKey          contextKey = "task"
	trialKey         contextKey = "trial"
	correlationIDKey contextKey = "correlation_id"
)

// WithParticipant stores a participant identifier on the context.
func WithParticipant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, participantKey, id)
}

// WithSession stores a session identifier on the context.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// WithTask stores the active task name on the context.
func WithTask(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskKey, name)
}

// WithTrial stores the 1-based trial number on the context.
func WithTrial(ctx context.Context, trial int) context.Context {
	return context.WithValue(ctx, trialKey, trial)
}

// WithCorrelationID stores a correlation identifier on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := ctx.Value(participantKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldParticipant, id))
	}
	if id, ok := ctx.Value(sessionKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldSession, id))
	}
	if name, ok := ctx.Value(taskKey).(string); ok && name != "" {
		fields = append(fields, slog.String(FieldTask, name))
	}
	if trial, ok := ctx.Value(trialKey).(int); ok && trial > 0 {
		fields = append(fields, slog.Int(FieldTrial, trial))
	}
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
