package objects

import (
	"time"

	"conductor/app/db/models"
	"conductor/pkg/contextx"
	"conductor/pkg/gormx"

	"github.com/google/uuid"
)

type OutboxIntent struct {
	*models.OutboxIntent
	ContextObject
	PersistentObject
}

func (o *OutboxIntent) Save(ctx *contextx.Context) error {
	now := time.Now().UTC()
	o.UpdatedAt = now
	if !o.IsCreated() {
		o.CreatedAt = now
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		if o.Status == "" {
			o.Status = models.IntentPending
		}
		if err := o.GetDB(ctx).Create(o.OutboxIntent).Error; err != nil {
			return err
		}
	} else if err := o.GetDB(ctx).Save(o.OutboxIntent).Error; err != nil {
		return err
	}
	o.SetContext(ctx)
	o.SetCreated()
	return nil
}

func (o *OutboxIntent) MarkSent(ctx *contextx.Context) error {
	o.Status = models.IntentSent
	o.Attempts++
	o.LastError = ""
	return o.Save(ctx)
}

// MarkFailed records a delivery error, the intent stays PENDING until
// maxAttempts is reached.
func (o *OutboxIntent) MarkFailed(ctx *contextx.Context, err error, maxAttempts int) error {
	o.Attempts++
	o.LastError = err.Error()
	if o.Attempts >= maxAttempts {
		o.Status = models.IntentFailed
	}
	return o.Save(ctx)
}

func NewOutboxIntent(kind, event, accountID, workflowID string, recipients []string, payload map[string]interface{}) *OutboxIntent {
	return &OutboxIntent{OutboxIntent: &models.OutboxIntent{
		Kind:       kind,
		Event:      event,
		AccountID:  accountID,
		WorkflowID: workflowID,
		Recipients: gormx.StringSlice(recipients),
		Payload:    gormx.MapJson(payload),
	}}
}

func QueryPendingIntents(ctx *contextx.Context, limit int) ([]*OutboxIntent, error) {
	var ms []*models.OutboxIntent
	err := GetDB(ctx).Where("status = ?", models.IntentPending).Order("created_at, id").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, err
	}
	intents := make([]*OutboxIntent, 0, len(ms))
	for _, m := range ms {
		o := &OutboxIntent{OutboxIntent: m}
		o.SetContext(ctx)
		o.SetCreated()
		intents = append(intents, o)
	}
	return intents, nil
}

// QueryIntentsByWorkflow is used by the API and tests to inspect side effects.
func QueryIntentsByWorkflow(ctx *contextx.Context, workflowID string) ([]*OutboxIntent, error) {
	var ms []*models.OutboxIntent
	if err := GetDB(ctx).Where("workflow_id = ?", workflowID).Order("created_at, id").Find(&ms).Error; err != nil {
		return nil, err
	}
	intents := make([]*OutboxIntent, 0, len(ms))
	for _, m := range ms {
		intents = append(intents, &OutboxIntent{OutboxIntent: m})
	}
	return intents, nil
}

func CountIntents(ctx *contextx.Context) (int64, error) {
	var count int64
	err := GetDB(ctx).Model(&models.OutboxIntent{}).Count(&count).Error
	return count, err
}

// HasWebhookSubscription is checked synchronously inside the transaction.
func HasWebhookSubscription(ctx *contextx.Context, accountID, event string) (bool, error) {
	var count int64
	err := GetDB(ctx).Model(&models.WebhookSubscription{}).
		Where("account_id = ? AND event = ? AND active = ?", accountID, event, true).
		Count(&count).Error
	return count > 0, err
}

func QueryWebhookSubscriptions(ctx *contextx.Context, accountID, event string) ([]*models.WebhookSubscription, error) {
	var subs []*models.WebhookSubscription
	err := GetDB(ctx).Where("account_id = ? AND event = ? AND active = ?", accountID, event, true).
		Order("id").Find(&subs).Error
	return subs, err
}

func CreateWebhookSubscription(ctx *contextx.Context, accountID, event, url string) (*models.WebhookSubscription, error) {
	sub := &models.WebhookSubscription{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Event:     event,
		URL:       url,
		Active:    true,
	}
	return sub, GetDB(ctx).Create(sub).Error
}
