// Package notify forwards operator alerts (boundary reached, strategy
// stopped, repeated cycle failures) to chat webhooks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs ("telegram").
	Name() string
}

// Notifier implements domain.Alerter by fanning out to every Sender. Alerts
// below the minimum severity are only logged.
type Notifier struct {
	senders []Sender
	min     domain.Severity
	logger  *slog.Logger
}

// NewNotifier delivers alerts of severity min and above to senders.
func NewNotifier(senders []Sender, min domain.Severity, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		min:     min,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// ParseSeverity maps "info", "warning" or "critical" onto a Severity.
func ParseSeverity(s string) (domain.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warning", "warn":
		return domain.SeverityWarning, nil
	case "info":
		return domain.SeverityInfo, nil
	case "critical":
		return domain.SeverityCritical, nil
	default:
		return 0, domain.NewConfigurationError("notify.min_severity", "unknown severity %q", s)
	}
}

// Alert sends title and message to every sender when sev is at least the
// configured minimum. The title is prefixed with the severity.
func (n *Notifier) Alert(ctx context.Context, sev domain.Severity, title, message string) error {
	if sev < n.min {
		n.logger.DebugContext(ctx, "alert below minimum severity",
			slog.String("severity", sev.String()),
			slog.String("title", title),
		)
		return nil
	}
	return n.dispatch(ctx, fmt.Sprintf("[%s] %s", sev, title), message)
}

// dispatch tries every sender and reports the failed ones together.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var _ domain.Alerter = (*Notifier)(nil)
