package urn

import "testing"

func TestParseUnscoped(t *testing.T) {
	u, err := Parse("rad:git:abc123")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.HashAlgo != "git" || u.Hash != "abc123" || u.Path != "" {
		t.Fatalf("Parse(unscoped) = %+v, want {git abc123 \"\"}", u)
	}
	if !u.IsNamespace() {
		t.Fatalf("IsNamespace() = false for an unscoped urn, want true")
	}
}

func TestParseScoped(t *testing.T) {
	u, err := Parse("rad:git:abc123/refs/heads/main")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.Path != "refs/heads/main" {
		t.Fatalf("Parse(scoped).Path = %q, want %q", u.Path, "refs/heads/main")
	}
	if u.IsNamespace() {
		t.Fatalf("IsNamespace() = true for a scoped urn, want false")
	}
}

func TestParseRejectsWrongScheme(t *testing.T) {
	if _, err := Parse("urn:git:abc123"); err == nil {
		t.Fatalf("Parse(wrong scheme) = nil error, want an error")
	}
}

func TestParseRejectsMalformedBody(t *testing.T) {
	if _, err := Parse("rad:abc123"); err == nil {
		t.Fatalf("Parse(missing hash algo separator) = nil error, want an error")
	}
	if _, err := Parse("rad::abc123"); err == nil {
		t.Fatalf("Parse(empty hash algo) = nil error, want an error")
	}
}

func TestStringRoundTrips(t *testing.T) {
	for _, s := range []string{"rad:git:abc123", "rad:git:abc123/refs/heads/main"} {
		u, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if u.String() != s {
			t.Fatalf("Parse(%q).String() = %q, want %q", s, u.String(), s)
		}
	}
}

func TestNamespaceStripsPath(t *testing.T) {
	u, err := Parse("rad:git:abc123/refs/heads/main")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ns := u.Namespace()
	if ns.Path != "" || ns.String() != "rad:git:abc123" {
		t.Fatalf("Namespace() = %+v, want the path stripped", ns)
	}
}
