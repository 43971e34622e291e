package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"conductor/app/config"
	"conductor/app/objects"
	"conductor/pkg/contextx"
	"conductor/pkg/log"

	"github.com/sony/gobreaker"
)

const (
	HeaderSignature = "X-Conductor-Signature"
	HeaderEvent     = "X-Conductor-Event"
	HeaderDelivery  = "X-Conductor-Delivery"
)

// Msg is the body posted to a subscriber.
type Msg struct {
	DeliveryID string                 `json:"delivery_id"`
	Event      string                 `json:"event"`
	AccountID  string                 `json:"account_id"`
	WorkflowID string                 `json:"workflow_id"`
	Timestamp  string                 `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload"`
}

// Sender posts webhook intents to every active subscription of the
// account. Calls go through one circuit breaker so a dead endpoint does not
// stall the outbox.
type Sender struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	secretKey string
	userAgent string
}

func NewSender(cfg config.WebhookConfig) *Sender {
	return &Sender{
		client:    &http.Client{Timeout: cfg.Timeout},
		secretKey: cfg.SecretKey,
		userAgent: cfg.UserAgent,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhooks",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnf(nil, "circuit breaker %s changed from %s to %s", name, from.String(), to.String())
			},
		}),
	}
}

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Sender) Deliver(ctx *contextx.Context, intent *objects.OutboxIntent) error {
	subs, err := objects.QueryWebhookSubscriptions(ctx, intent.AccountID, intent.Event)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		log.Debugf(ctx, "no subscription for webhook %s of account %s", intent.Event, intent.AccountID)
		return nil
	}

	body, err := json.Marshal(&Msg{
		DeliveryID: intent.ID,
		Event:      intent.Event,
		AccountID:  intent.AccountID,
		WorkflowID: intent.WorkflowID,
		Timestamp:  intent.CreatedAt.UTC().Format(time.RFC3339),
		Payload:    intent.Payload,
	})
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.post(ctx, sub.URL, intent, body); err != nil {
			return fmt.Errorf("webhook %s to %s: %w", intent.Event, sub.URL, err)
		}
	}
	return nil
}

func (s *Sender) post(ctx *contextx.Context, url string, intent *objects.OutboxIntent, body []byte) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("User-Agent", s.userAgent)
		request.Header.Set(HeaderEvent, intent.Event)
		request.Header.Set(HeaderDelivery, intent.ID)
		request.Header.Set(HeaderSignature, "sha256="+Sign(s.secretKey, body))

		response, err := s.client.Do(request)
		if err != nil {
			return nil, err
		}
		defer response.Body.Close()
		resp, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		log.Debugf(ctx, "webhook %s to %s returned %d: %s", intent.Event, url, response.StatusCode, resp)
		if response.StatusCode < 200 || response.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d", response.StatusCode)
		}
		return nil, nil
	})
	return err
}
