package alert

import "time"

// Severity classifies how urgent an alert is.
type Severity string

const (
	// SeverityInfo marks alerts that are informational only.
	SeverityInfo Severity = "info"

	// SeverityWarning marks alerts that need attention soon.
	SeverityWarning Severity = "warning"

	// SeverityCritical marks alerts that need attention now.
	SeverityCritical Severity = "critical"
)

// Rank returns the severity's ordering; higher is more urgent. Unknown
// severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Alert is one operational event worth a human's attention.
type Alert struct {
	// Severity classifies the alert.
	Severity Severity `json:"severity"`

	// Component names the subsystem that raised the alert, e.g.
	// "policy_engine".
	Component string `json:"component"`

	// Message is a short human-readable description.
	Message string `json:"message"`

	// Fields carries structured context for the alert payload.
	Fields map[string]any `json:"fields,omitempty"`

	// Time is when the alert was raised. The dispatcher fills it in when
	// zero.
	Time time.Time `json:"time"`
}
