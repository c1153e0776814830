package models

import "strings"

// Severity levels as constants for type safety and consistency.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
	SeverityUnknown  = "unknown"
)

// IsValidSeverity checks if a severity level is valid.
func IsValidSeverity(severity string) bool {
	switch severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo, SeverityUnknown:
		return true
	default:
		return false
	}
}

// SeverityFromPriority maps a tool's numeric priority onto a severity level.
// SpotBugs uses 1 (high) to 3 (low); PMD uses 1 to 5.
func SeverityFromPriority(tool Tool, priority string) string {
	p := strings.TrimSpace(priority)
	switch tool {
	case ToolSpotBugs:
		switch p {
		case "1":
			return SeverityHigh
		case "2":
			return SeverityMedium
		case "3":
			return SeverityLow
		}
	case ToolPMD:
		switch p {
		case "1":
			return SeverityCritical
		case "2":
			return SeverityHigh
		case "3":
			return SeverityMedium
		case "4":
			return SeverityLow
		case "5":
			return SeverityInfo
		}
	}
	return SeverityUnknown
}
