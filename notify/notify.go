// Package notify delivers rendered rule notifications over NATS. Each
// notification is published to notifications.{tenant}.{channel} so channel
// consumers (UI fan-out, mailers, SMS gateways) subscribe to exactly the
// slice they serve.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360/ruleflow/dispatch"
	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/natsclient"
)

// SubjectPrefix is the root of the notification subject hierarchy
const SubjectPrefix = "notifications"

// Sink publishes notifications to NATS
type Sink struct {
	client *natsclient.Client
	logger *slog.Logger
}

// compile-time interface check
var _ dispatch.NotificationSink = (*Sink)(nil)

// NewSink creates a NATS-backed notification sink
func NewSink(client *natsclient.Client) *Sink {
	return &Sink{
		client: client,
		logger: slog.Default().With("component", "notification-sink"),
	}
}

// Notify publishes one notification. Acceptance by the NATS server counts
// as delivery; downstream channel consumers handle their own persistence.
func (s *Sink) Notify(ctx context.Context, n dispatch.Notification) error {
	if n.TenantID == "" || n.Channel == "" {
		return errors.WrapInvalid(
			fmt.Errorf("notification requires tenant and channel"),
			"notify", "Notify", "validate notification")
	}

	data, err := json.Marshal(n)
	if err != nil {
		return errors.WrapInvalid(err, "notify", "Notify", "marshal notification")
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, n.TenantID, n.Channel)
	if err := s.client.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "notify", "Notify", "publish notification")
	}

	s.logger.Debug("notification published",
		"subject", subject, "rule_id", n.RuleID, "level", n.Level)
	return nil
}
