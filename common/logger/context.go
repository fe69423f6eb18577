package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Session context (session_id, channel_id, ...) flows
// through enrichment so relay internals never pass ids by hand.
type LogFields struct {
	SessionID   *string // session id (equals the recipient id)
	RecipientID *string // external user id
	ChannelID   *string // staff-facing channel handle
	MessageID   *string // redis stream message id
	EventType   *string // inbound task type (e.g. "inbound_message")
	Component   string  // component name, e.g. "mailroom.thread.manager"
}

// WithLogFields enriches context with structured log fields. Repeated
// calls merge, newer non-nil/non-empty values winning.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context, zero-valued if unset.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.SessionID != nil {
		result.SessionID = next.SessionID
	}
	if next.RecipientID != nil {
		result.RecipientID = next.RecipientID
	}
	if next.ChannelID != nil {
		result.ChannelID = next.ChannelID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to set LogFields inline:
// logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
