package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/linkup-social/flowkit/internal/logger"
	"github.com/linkup-social/flowkit/workflows"
)

// LogNotifier implements workflows.Notifier by logging the notification
// instead of delivering it. Used when no SMTP transport is configured.
type LogNotifier struct{}

var _ workflows.Notifier = LogNotifier{}

func (LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	logger.Info("notification (not delivered, no transport configured)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("bodyBytes", len(body)))
	return nil
}
