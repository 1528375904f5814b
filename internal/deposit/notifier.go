package deposit

import (
	"log/slog"

	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/cradoe/leverpad/internal/models"
	"github.com/cradoe/leverpad/internal/stream"
)

// notifier is the logging, metrics and event side of both deposit rails.
type notifier struct {
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// recordMissing makes a committed credit without its deposit row visible:
// loudly logged, counted and handed to the reconcile worker.
func (n notifier) recordMissing(record *models.Deposit, cause error) {
	n.logger.Error("deposit credited but record insert failed",
		"txid", record.TxID.String,
		"order_id", record.OrderID.String,
		"wallet", record.WalletAddress,
		"amount", record.Amount.String(),
		"error", cause,
	)

	if n.metrics != nil {
		n.metrics.DepositRecordMissing.WithLabelValues(record.VerificationSource.String).Inc()
	}

	event := NewRecordMissingEvent(record, cause)
	n.publish(stream.DepositRecordMissingTopic, event.Key(), event)
}

func (n notifier) publish(topic, key string, event any) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(topic, key, event); err != nil {
		n.logger.Error("failed to publish event", "topic", topic, "error", err)
	}
}

func (n notifier) reject(reason string) {
	if n.metrics != nil {
		n.metrics.DepositsRejected.WithLabelValues(reason).Inc()
	}
}

func (n notifier) upstreamError(upstream string) {
	if n.metrics != nil {
		n.metrics.UpstreamErrors.WithLabelValues(upstream).Inc()
	}
}
