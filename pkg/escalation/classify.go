package escalation

import (
	"regexp"
	"strings"

	"termpool/internal/model"
	"termpool/pkg/constants"
)

// keyword table, checked in order; credential before permission so
// "unauthorized: permission denied for key" reads as a credential problem
// "words" must stand alone so "line 4013" or "room" do not match
var categoryKeywords = []struct {
	category constants.FailureCategory
	keywords []string
	words    *regexp.Regexp
}{
	{constants.FailureAPICredential, []string{"api key", "api_key", "unauthorized", "invalid token", "expired token", "credential", "authentication"}, regexp.MustCompile(`\b401\b`)},
	{constants.FailurePermission, []string{"permission", "denied", "forbidden", "not allowed", "eacces"}, regexp.MustCompile(`\b403\b`)},
	{constants.FailureResourceExhaustion, []string{"out of memory", "oomkilled", "no space left", "resource exhausted", "too many open files", "enomem", "quota", "disk full"}, regexp.MustCompile(`\b(oom|507)\b`)},
	{constants.FailureTimeout, []string{"timeout", "timed out", "deadline exceeded"}, regexp.MustCompile(`\b(408|504)\b`)},
}

var remediations = map[constants.FailureCategory]string{
	constants.FailurePermission:         "Grant the required filesystem or tool permissions to the assistant, or enable permission auto-accept, then resubmit the task.",
	constants.FailureAPICredential:      "Rotate or fix the assistant's API credentials on the host and resubmit the task.",
	constants.FailureTimeout:            "Split the task into smaller steps or raise its timeout, then resubmit.",
	constants.FailureResourceExhaustion: "Free memory or disk on the host, or shrink the pool, then resubmit the task.",
	constants.FailureUnknown:            "Inspect the attempt history and audit log for this task; no known failure pattern matched.",
}

// ClassifyMessage maps a single error message to a category
func ClassifyMessage(msg string) constants.FailureCategory {
	lower := strings.ToLower(msg)
	if lower == "" {
		return constants.FailureUnknown
	}
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.category
			}
		}
		if entry.words.MatchString(lower) {
			return entry.category
		}
	}
	return constants.FailureUnknown
}

// Classify picks the category of the most recent attempt that matches a
// known pattern. Timed-out attempts classify as timeout even without a message.
func Classify(attempts []model.Attempt, extra []string) constants.FailureCategory {
	for i := len(extra) - 1; i >= 0; i-- {
		if c := ClassifyMessage(extra[i]); c != constants.FailureUnknown {
			return c
		}
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if c := ClassifyMessage(a.Error); c != constants.FailureUnknown {
			return c
		}
		if a.Outcome == constants.AttemptOutcomeTimeout {
			return constants.FailureTimeout
		}
	}
	return constants.FailureUnknown
}

// Remediation recommended operator action for a category
func Remediation(c constants.FailureCategory) string {
	if r, ok := remediations[c]; ok {
		return r
	}
	return remediations[constants.FailureUnknown]
}
