package domain

// Priority represents the urgency tier derived from a risk score.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ResolvePriority maps a 0-100 risk score to a priority tier and an
// auto-escalation flag. Scores of 80 and above are Critical and trigger an
// escalation ledger entry at creation time. The result is computed exactly
// once per issue and never recomputed on reassignment.
func ResolvePriority(riskScore int) (Priority, bool) {
	switch {
	case riskScore >= 80:
		return PriorityCritical, true
	case riskScore >= 60:
		return PriorityHigh, false
	case riskScore >= 30:
		return PriorityMedium, false
	default:
		return PriorityLow, false
	}
}
