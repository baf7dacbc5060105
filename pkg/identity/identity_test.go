package identity

import "testing"

func TestDeterministicIDIsStableUnderWhitespace(t *testing.T) {
	a := DeterministicID("  Hello   World  ")
	b := DeterministicID("hello world")
	if a != b {
		t.Fatalf("expected normalized text to hash identically, got %s vs %s", a, b)
	}
}

func TestDeterministicIDDiffersOnContent(t *testing.T) {
	a := DeterministicID("hello world")
	b := DeterministicID("hello there")
	if a == b {
		t.Fatalf("expected distinct content to hash differently")
	}
}

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"Projects":      "projects",
		"My Project!!":  "my_project",
		"___":           "unknown",
		"":               "unknown",
		"already_clean": "already_clean",
	}
	for in, want := range cases {
		if got := SanitizeLabel(in); got != want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizePathRewritesUserRoot(t *testing.T) {
	got := SanitizePath("user.preferences.ui")
	want := "profile.preferences.ui"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSanitizePathCapsDepth(t *testing.T) {
	got := SanitizePath("a.b.c.d.e.f.g.h")
	want := "a.b.c.d.e.f"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSanitizePathEmptyFallsBackToReferenceUnknown(t *testing.T) {
	if got := SanitizePath(""); got != "reference.unknown" {
		t.Fatalf("got %q", got)
	}
}

func TestVectorLiteral(t *testing.T) {
	got := VectorLiteral([]float64{0.1, -0.2, 3})
	want := "[0.1,-0.2,3]"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
