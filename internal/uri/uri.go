// Package uri validates WAMP URIs and implements the three match modes a
// Registration or Subscription may be created under: exact, prefix, and
// wildcard.
package uri

import "strings"

// MatchMode selects how a registered/subscribed URI pattern is compared
// against an incoming CALL/PUBLISH topic.
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchPrefix   MatchMode = "prefix"
	MatchWildcard MatchMode = "wildcard"
)

// Valid reports whether uri is a well-formed WAMP URI: one or more
// dot-separated segments, none containing whitespace or '#'. Wildcard
// patterns are allowed to have empty segments (e.g. "com..cdc.update"), so
// Valid does not reject those; callers that need non-wildcard validation
// should check match mode first.
func Valid(u string) bool {
	if u == "" {
		return false
	}
	for _, seg := range strings.Split(u, ".") {
		for _, r := range seg {
			if r == '#' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				return false
			}
		}
	}
	return true
}

// ValidSegments additionally requires every segment be non-empty; this is
// the rule for exact and prefix patterns, which may not contain wildcard
// gaps.
func ValidSegments(u string) bool {
	if !Valid(u) {
		return false
	}
	for _, seg := range strings.Split(u, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

// Match reports whether candidate (an incoming CALL procedure or PUBLISH
// topic) is matched by pattern under the given mode.
func Match(mode MatchMode, pattern, candidate string) bool {
	switch mode {
	case MatchPrefix:
		return matchPrefix(pattern, candidate)
	case MatchWildcard:
		return matchWildcard(pattern, candidate)
	default: // MatchExact and unrecognized modes fall back to exact equality
		return pattern == candidate
	}
}

// matchPrefix matches on a segment boundary: "com.x" matches "com.x" and
// "com.x.y" but not "com.xy", since the latter only shares a string prefix
// and not a full leading segment.
func matchPrefix(pattern, candidate string) bool {
	return candidate == pattern || strings.HasPrefix(candidate, pattern+".")
}

// matchWildcard implements segment-wise wildcard matching: pattern and
// candidate must have the same number of dot-separated segments, and every
// pattern segment must either be empty (a wildcard, matching anything in
// that position) or equal the candidate's segment at that position.
func matchWildcard(pattern, candidate string) bool {
	pSegs := strings.Split(pattern, ".")
	cSegs := strings.Split(candidate, ".")
	if len(pSegs) != len(cSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "" {
			continue
		}
		if p != cSegs[i] {
			return false
		}
	}
	return true
}

// Precedence orders match modes for resolving a CALL against registrations
// under multiple modes: exact wins over prefix wins over wildcard. Lower
// return value means higher precedence.
func Precedence(mode MatchMode) int {
	switch mode {
	case MatchExact:
		return 0
	case MatchPrefix:
		return 1
	case MatchWildcard:
		return 2
	default:
		return 3
	}
}
