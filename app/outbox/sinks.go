package outbox

import (
	"fmt"
	"strings"

	"conductor/app/objects"
	"conductor/app/workflow"
	"conductor/pkg/cache"
	"conductor/pkg/contextx"
	"conductor/pkg/log"
	"conductor/pkg/mq"
)

// Notification is the message consumed by the notification service.
type Notification struct {
	Kind       string                 `json:"kind"`
	AccountID  string                 `json:"account_id"`
	WorkflowID string                 `json:"workflow_id"`
	Recipients []string               `json:"recipients"`
	Payload    map[string]interface{} `json:"payload"`
}

// NotificationSink publishes notifications with routing key
// notification.<kind>.
func NotificationSink(publisher *mq.Publisher) Sink {
	return SinkFunc(func(ctx *contextx.Context, intent *objects.OutboxIntent) error {
		key := "notification." + strings.ToLower(intent.Event)
		return publisher.Publish(ctx, key, intent.ID, &Notification{
			Kind:       intent.Event,
			AccountID:  intent.AccountID,
			WorkflowID: intent.WorkflowID,
			Recipients: intent.Recipients,
			Payload:    intent.Payload,
		})
	})
}

// GuestCacheSink applies guest token cache operations.
func GuestCacheSink(tokens *cache.GuestTokens) Sink {
	return SinkFunc(func(ctx *contextx.Context, intent *objects.OutboxIntent) error {
		taskID, _ := intent.Payload["task_id"].(string)
		if taskID == "" {
			return fmt.Errorf("guest cache intent %s has no task", intent.ID)
		}
		switch intent.Event {
		case workflow.GuestCacheInvalidate:
			return tokens.Invalidate(ctx, taskID)
		case workflow.GuestCacheDelete:
			return tokens.Delete(ctx, taskID)
		}
		return fmt.Errorf("unknown guest cache operation %q", intent.Event)
	})
}

// LogSink only logs, used for kinds whose backend is not configured.
func LogSink(ctx *contextx.Context, intent *objects.OutboxIntent) error {
	log.Infof(ctx, "outbox %s %s for workflow %s to %v", intent.Kind, intent.Event, intent.WorkflowID, []string(intent.Recipients))
	return nil
}
