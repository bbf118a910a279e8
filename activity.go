package bulwark

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountCreated     ActivityEventType = "account.created"
	ActivityEventAccountVerified    ActivityEventType = "account.verified"
	ActivityEventAccountDeleted     ActivityEventType = "account.deleted"
	ActivityEventAccountEnabled     ActivityEventType = "account.enabled"
	ActivityEventAccountDisabled    ActivityEventType = "account.disabled"
	ActivityEventEmailChanged       ActivityEventType = "account.email.changed"
	ActivityEventPasswordChanged    ActivityEventType = "account.password.changed"
	ActivityEventPasswordReset      ActivityEventType = "account.password.reset"
	ActivityEventSocialLinked       ActivityEventType = "account.social.linked"
	ActivityEventAuthenticated      ActivityEventType = "auth.authenticated"
	ActivityEventAuthFailed         ActivityEventType = "auth.failed"
	ActivityEventAcknowledged       ActivityEventType = "auth.acknowledged"
	ActivityEventRenewed            ActivityEventType = "auth.renewed"
	ActivityEventRevoked            ActivityEventType = "auth.revoked"
	ActivityEventMagicCodeRequested ActivityEventType = "auth.magic_code.requested"
	ActivityEventSocialLogin        ActivityEventType = "auth.social.login"
)

// ActivityEvent captures audit-friendly information about an action. Tokens
// and passwords are never included.
type ActivityEvent struct {
	EventType  ActivityEventType
	AccountID  string
	Email      string
	DeviceID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity emits best effort, sink failures are only logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, clock Clock, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = clock().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed for %s: %v", event.EventType, err)
	}
}
