package session

import "strings"

// RedactionFilter masks caller PII in session state before it is
// broadcast to agent consoles. The zero value is a no-op filter.
type RedactionFilter struct {
	MaskNumbers   bool // ANI/DNIS reduced to their last four digits
	MaskCallerRef bool
	DropScreenPop bool
}

// Apply returns a copy of the session with sensitive fields masked
// according to the filter configuration. The input is never modified.
func (f *RedactionFilter) Apply(s *CallSession) *CallSession {
	if f.IsNoop() {
		return s
	}
	masked := s.Clone()

	if f.MaskNumbers {
		masked.ANI = maskNumber(masked.ANI)
		masked.DNIS = maskNumber(masked.DNIS)
	}
	if f.MaskCallerRef {
		masked.CallerRef = maskTail(masked.CallerRef, 4)
	}
	if f.DropScreenPop {
		masked.ScreenPop = nil
	}
	return masked
}

// FilterSlice returns a new slice with masking applied to each session.
// The original slice and its elements are not modified.
func (f *RedactionFilter) FilterSlice(sessions []*CallSession) []*CallSession {
	if f.IsNoop() {
		return sessions
	}
	result := make([]*CallSession, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, f.Apply(s))
	}
	return result
}

// IsNoop reports whether the filter does nothing.
func (f *RedactionFilter) IsNoop() bool {
	return !f.MaskNumbers && !f.MaskCallerRef && !f.DropScreenPop
}

// maskNumber keeps the last four digits of a phone number and replaces
// the rest with asterisks, preserving a leading "+".
func maskNumber(num string) string {
	if num == "" {
		return ""
	}
	prefix := ""
	rest := num
	if strings.HasPrefix(num, "+") {
		prefix = "+"
		rest = num[1:]
	}
	return prefix + maskTail(rest, 4)
}

// maskTail keeps the last n characters of s, masking the rest.
func maskTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.Repeat("*", len(s)-n) + s[len(s)-n:]
}
