package domain

import (
	"context"
	"log/slog"
)

// Severity orders operator notifications.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// LevelCritical is the slog level used for terminal events.
const LevelCritical = slog.Level(12)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// Alerter delivers operator notifications.
type Alerter interface {
	Alert(ctx context.Context, sev Severity, title, message string) error
}
