package analytics

import (
	"fmt"

	"conductor/app/objects"
	"conductor/pkg/contextx"
	"conductor/pkg/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Recorder counts engine analytics events per event name and account.
type Recorder struct {
	events *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "workflow_events_total",
		Help:      "Total number of workflow analytics events delivered",
	}, []string{"event", "account"})
	if err := reg.Register(events); err != nil {
		return nil, fmt.Errorf("register analytics metrics: %w", err)
	}
	return &Recorder{events: events}, nil
}

func (r *Recorder) Deliver(ctx *contextx.Context, intent *objects.OutboxIntent) error {
	r.events.WithLabelValues(intent.Event, intent.AccountID).Inc()
	log.GetLogger(ctx, "analytics").WithFields(logrus.Fields{
		"event":    intent.Event,
		"account":  intent.AccountID,
		"actor":    intent.Payload["actor"],
		"subjects": intent.Payload["subjects"],
	}).Info("workflow analytics event")
	return nil
}
