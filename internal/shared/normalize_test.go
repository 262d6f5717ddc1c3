package shared

import "testing"

func TestCleanString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Acme  ", "Acme"},
		{"'Acme'", "Acme"},
		{`""Acme""`, "Acme"},
		{`"'Acme'"`, "Acme"},
		{"''", ""},
		{`""`, ""},
		{"NULL", ""},
		{"none", ""},
		{"NaN", ""},
		{"​IT ", "IT"},
		{"", ""},
		{"O'Brien Ltd", "O'Brien Ltd"},
	}
	for _, tc := range cases {
		if got := CleanString(tc.in); got != tc.want {
			t.Fatalf("CleanString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsAll(t *testing.T) {
	if !IsAll(nil) {
		t.Fatalf("nil should mean ALL")
	}
	if !IsAll([]string{}) {
		t.Fatalf("empty list should mean ALL")
	}
	if !IsAll([]string{" all "}) {
		t.Fatalf("singleton ALL should mean ALL")
	}
	if IsAll([]string{"ALL", "Acme"}) {
		t.Fatalf("ALL alongside a value is a real filter")
	}
	if IsAll([]string{"Acme"}) {
		t.Fatalf("a value is not ALL")
	}
}

func TestNormalizeFilter(t *testing.T) {
	if got := NormalizeFilter([]string{"ALL"}); got != nil {
		t.Fatalf("ALL must normalise to nil, got %v", got)
	}
	got := NormalizeFilter([]string{"Acme, Globex|Initech", "  "})
	want := []string{"Acme", "Globex", "Initech"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if got := NormalizeFilter([]string{"''", "NULL"}); got != nil {
		t.Fatalf("garbage-only input must normalise to nil, got %v", got)
	}
}

func TestNormalizeDashes(t *testing.T) {
	if got := NormalizeDashes("1–5"); got != "1-5" {
		t.Fatalf("got %q", got)
	}
}

func TestFallbackUnknown(t *testing.T) {
	if got := FallbackUnknown("  "); got != "UNKNOWN" {
		t.Fatalf("blank should collapse to UNKNOWN, got %q", got)
	}
	if got := FallbackUnknown("'IT'"); got != "IT" {
		t.Fatalf("got %q", got)
	}
}
