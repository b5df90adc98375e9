// Package emergency turns panic triggers and AI detections into standard
// emergency signals and decides how far the system may act on its own.
package emergency

import (
	"fmt"
	"strings"
)

// Category groups detections by what kind of help they need.
type Category string

const (
	CategoryHealth      Category = "health"
	CategorySecurity    Category = "security"
	CategoryEnvironment Category = "environment"
)

// Severity grades a detection by model confidence.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is as severe as o or more.
func (s Severity) AtLeast(o Severity) bool {
	return severityRank[s] >= severityRank[o]
}

// AlertLevel maps the severity to the 1..3 scale of DetectionAlert.
func (s Severity) AlertLevel() int {
	switch s {
	case SeverityCritical, SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// AutoResponseLevel is the user's policy for acting without confirmation.
type AutoResponseLevel string

const (
	AutoResponseNone   AutoResponseLevel = "none"
	AutoResponseNotify AutoResponseLevel = "notify"
	AutoResponseAssist AutoResponseLevel = "assist"
	AutoResponseFull   AutoResponseLevel = "full"
)

// ParseAutoResponseLevel parses a level name, case-insensitively.
func ParseAutoResponseLevel(s string) (AutoResponseLevel, error) {
	switch l := AutoResponseLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case AutoResponseNone, AutoResponseNotify, AutoResponseAssist, AutoResponseFull:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Action is what the dispatcher does after a detection.
type Action string

const (
	// ActionAutomatic places the (simulated) emergency call and broadcasts.
	ActionAutomatic Action = "automatic"
	// ActionNotify only tells the user.
	ActionNotify Action = "notify"
	// ActionLog only writes a log line.
	ActionLog Action = "log"
)

// Classification is the pure result of mapping a detection.
type Classification struct {
	Subtype    string   `json:"subtype"`
	Confidence float64  `json:"confidence"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
}

// CategoryFor maps a detection subtype to a category.
func CategoryFor(subtype string) Category {
	switch strings.ToLower(subtype) {
	case "fall", "medical":
		return CategoryHealth
	case "weapon", "struggle":
		return CategorySecurity
	default:
		return CategoryEnvironment
	}
}

// SeverityFor maps a confidence in [0,1] to a severity.
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.75:
		return SeverityHigh
	case confidence >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Classify maps a detection subtype and confidence.
func Classify(subtype string, confidence float64) Classification {
	return Classification{
		Subtype:    subtype,
		Confidence: confidence,
		Category:   CategoryFor(subtype),
		Severity:   SeverityFor(confidence),
	}
}

// DecideAutomaticResponse applies the auto-response policy. Only full
// combined with high or critical severity acts on its own; assist notifies;
// everything else is logged.
func DecideAutomaticResponse(severity Severity, level AutoResponseLevel) Action {
	switch level {
	case AutoResponseFull:
		if severity.AtLeast(SeverityHigh) {
			return ActionAutomatic
		}
		return ActionLog
	case AutoResponseAssist:
		return ActionNotify
	default:
		return ActionLog
	}
}
