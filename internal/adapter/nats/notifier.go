package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/teamline/teamline/internal/port/messagequeue"
	"github.com/teamline/teamline/internal/port/notifier"
)

// Notifier publishes operator alerts to the audit stream. Delivery is
// best-effort: a failed publish is logged and the caller's operation proceeds.
type Notifier struct {
	queue  *Queue
	logger *slog.Logger
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier publishing to the audit alerts subject.
func NewNotifier(queue *Queue, logger *slog.Logger) *Notifier {
	return &Notifier{queue: queue, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, alert notifier.Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("marshal alert", "kind", alert.Kind, "error", err)
		return
	}
	if err := n.queue.Publish(ctx, messagequeue.SubjectAlerts, data); err != nil {
		n.logger.Error("publish alert", "kind", alert.Kind, "tenant_id", alert.TenantID, "error", err)
	}
}
