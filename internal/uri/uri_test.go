package uri

import "testing"

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"com.example.foo": true,
		"com..foo":         true, // empty segment allowed in general Valid
		"":                 false,
		"com.ex ample":     false,
		"com.example#bad":  false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidSegments(t *testing.T) {
	if !ValidSegments("com.example.foo") {
		t.Error("expected com.example.foo to have valid segments")
	}
	if ValidSegments("com..foo") {
		t.Error("expected com..foo to be rejected: empty segment")
	}
}

func TestMatchExact(t *testing.T) {
	if !Match(MatchExact, "com.example.foo", "com.example.foo") {
		t.Error("expected exact match")
	}
	if Match(MatchExact, "com.example.foo", "com.example.bar") {
		t.Error("expected no exact match")
	}
}

func TestMatchPrefix(t *testing.T) {
	if !Match(MatchPrefix, "com.example", "com.example.foo") {
		t.Error("expected prefix match")
	}
	if Match(MatchPrefix, "com.example", "com.other.foo") {
		t.Error("expected no prefix match")
	}
	if !Match(MatchPrefix, "com.x", "com.x") {
		t.Error("expected prefix pattern to match itself exactly")
	}
	if !Match(MatchPrefix, "com.x", "com.x.y") {
		t.Error("expected prefix match on a full leading segment")
	}
	if Match(MatchPrefix, "com.x", "com.xy") {
		t.Error("expected no prefix match: com.xy only shares a string prefix, not a segment")
	}
}

func TestMatchWildcard(t *testing.T) {
	if !Match(MatchWildcard, "io..created", "io.user.created") {
		t.Error("expected wildcard match on middle segment")
	}
	if Match(MatchWildcard, "io..created", "io.user.deleted") {
		t.Error("expected no wildcard match: last segment differs")
	}
	if Match(MatchWildcard, "io..created", "io.user.sub.created") {
		t.Error("expected no wildcard match: segment count differs")
	}
}

func TestPrecedence(t *testing.T) {
	if Precedence(MatchExact) >= Precedence(MatchPrefix) {
		t.Error("expected exact to outrank prefix")
	}
	if Precedence(MatchPrefix) >= Precedence(MatchWildcard) {
		t.Error("expected prefix to outrank wildcard")
	}
}
