// Package notify provides the default fire-and-forget status notifier.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/embedx/internal/domain"
)

// LogNotifier emits status messages to the structured log. Best effort only:
// it never blocks and never returns anything to the caller.
type LogNotifier struct {
	logger *zap.Logger
}

var _ domain.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements domain.Notifier.
func (n *LogNotifier) Notify(_ context.Context, message string) {
	n.logger.Info("Status notification", zap.String("message", message))
}
