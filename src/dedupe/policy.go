package dedupe

import (
	"fmt"
	"strings"
	"time"
)

// Policy decides what happens when a trading day already has setups from another message.
type Policy string

const (
	PolicySkip    Policy = "skip"
	PolicyReplace Policy = "replace"
	PolicyAllow   Policy = "allow"
)

// ParsePolicy accepts the policy names case-insensitively. Empty means skip.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyReplace:
		return PolicyReplace, nil
	case PolicyAllow:
		return PolicyAllow, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// Decision is the outcome for a candidate message.
type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionSkip    Decision = "skip"
	DecisionReplace Decision = "replace"
)

// DayContributor is the metadata of a message that produced setups for a trading day.
type DayContributor struct {
	MessageID     string    `json:"message_id"`
	ReceivedAt    time.Time `json:"received_at"`
	ContentLength int       `json:"content_length"`
}

// Decide is the pure cross-message rule. A redelivered message always skips. Under replace
// the candidate must be strictly newer and strictly longer, so an exact tie keeps the
// existing message.
func Decide(policy Policy, existing *DayContributor, candidate DayContributor) Decision {
	if existing == nil {
		return DecisionProceed
	}
	if existing.MessageID == candidate.MessageID {
		return DecisionSkip
	}

	switch policy {
	case PolicyAllow:
		return DecisionProceed
	case PolicyReplace:
		if candidate.ReceivedAt.After(existing.ReceivedAt) && candidate.ContentLength > existing.ContentLength {
			return DecisionReplace
		}
		return DecisionSkip
	default:
		return DecisionSkip
	}
}
