// Package status scrubs credentials and host details out of assistant error
// text before it leaves the pool in diagnoses, notifications and webhooks.
package status

import (
	"regexp"
)

// sensitivePattern one redaction rule
type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// Sanitizer redacts sensitive substrings from free-form error messages.
// Rules apply in registration order.
type Sanitizer struct {
	sensitivePatterns []*sensitivePattern
}

// NewSanitizer creates a sanitizer with the default rules
func NewSanitizer() *Sanitizer {
	return &Sanitizer{sensitivePatterns: buildDefaultSensitivePatterns()}
}

func buildDefaultSensitivePatterns() []*sensitivePattern {
	return []*sensitivePattern{
		// credentials embedded in URLs go first so the host survives
		{
			pattern:     regexp.MustCompile(`(https?://)[^:/@\s]+:[^@/\s]+@`),
			replacement: "${1}[REDACTED]@",
			description: "URL basic-auth credentials",
		},
		{
			pattern:     regexp.MustCompile(`(?i)(authorization:\s*bearer\s+|bearer\s+)[A-Za-z0-9._~+/=-]{8,}`),
			replacement: "${1}[REDACTED]",
			description: "bearer token",
		},
		{
			pattern:     regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
			replacement: "[REDACTED_API_KEY]",
			description: "provider API key",
		},
		{
			pattern:     regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`),
			replacement: "[REDACTED_TOKEN]",
			description: "GitHub token",
		},
		{
			pattern:     regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`),
			replacement: "[REDACTED_AWS_KEY]",
			description: "AWS access key id",
		},
		{
			pattern:     regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:TOKEN|SECRET|PASSWORD|PASSWD|API_KEY|APIKEY)[A-Z0-9_]*)(\s*[=:]\s*)("[^"]*"|'[^']*'|\S+)`),
			replacement: "${1}${2}[REDACTED]",
			description: "key=value secret assignment",
		},

		// host details
		{
			pattern:     regexp.MustCompile(`\b10\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[INTERNAL_IP]",
			description: "private IP 10.0.0.0/8",
		},
		{
			pattern:     regexp.MustCompile(`\b172\.(?:1[6-9]|2[0-9]|3[0-1])\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[INTERNAL_IP]",
			description: "private IP 172.16.0.0/12",
		},
		{
			pattern:     regexp.MustCompile(`\b192\.168\.\d{1,3}\.\d{1,3}\b`),
			replacement: "[INTERNAL_IP]",
			description: "private IP 192.168.0.0/16",
		},
		{
			pattern:     regexp.MustCompile(`(/home/|/Users/)[^/\s]+`),
			replacement: "${1}[USER]",
			description: "home directory owner",
		},
	}
}

// SanitizeSensitiveInfo returns message with every rule applied
func (s *Sanitizer) SanitizeSensitiveInfo(message string) string {
	if message == "" {
		return message
	}
	result := message
	for _, sp := range s.sensitivePatterns {
		result = sp.pattern.ReplaceAllString(result, sp.replacement)
	}
	return result
}

// SanitizeAll sanitizes each message into a new slice
func (s *Sanitizer) SanitizeAll(messages []string) []string {
	if messages == nil {
		return nil
	}
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = s.SanitizeSensitiveInfo(m)
	}
	return out
}

// AddSensitivePattern registers an extra rule, applied after the defaults
func (s *Sanitizer) AddSensitivePattern(pattern *regexp.Regexp, replacement, description string) {
	s.sensitivePatterns = append(s.sensitivePatterns, &sensitivePattern{
		pattern:     pattern,
		replacement: replacement,
		description: description,
	})
}

// Rules lists rule descriptions in application order
func (s *Sanitizer) Rules() []string {
	out := make([]string, len(s.sensitivePatterns))
	for i, sp := range s.sensitivePatterns {
		out[i] = sp.description
	}
	return out
}
