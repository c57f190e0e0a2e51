package ratelimit

import "strings"

// KeyFor builds a limiter key for subject under scope. An empty subject
// yields an empty key, which every limiter treats as unlimited.
func KeyFor(scope Scope, subject string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		return ""
	}
	switch scope {
	case ScopeAPI:
		return "api:" + subject
	case ScopeLogin:
		return "login:" + subject
	case ScopeTwoFA:
		return "2fa:" + subject
	default:
		return ""
	}
}
