package language

import "testing"

func TestToISO2(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"en", "en"},
		{"eng", "en"},
		{"english", "en"},
		{"ENGLISH", "en"},
		{" fra ", "fr"},
		{"fre", "fr"},
		{"ger", "de"},
		{"farsi", "fa"},
		{"xx", "xx"}, // unknown 2-letter passes through
		{"xyz", ""},
		{"klingon", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ToISO2(tc.input); got != tc.want {
			t.Errorf("ToISO2(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("en"); got != "English" {
		t.Fatalf("DisplayName(en) = %q", got)
	}
	if got := DisplayName("dut"); got != "Dutch" {
		t.Fatalf("DisplayName(dut) = %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName empty = %q", got)
	}
	if got := DisplayName("qq"); got != "QQ" {
		t.Fatalf("DisplayName unknown = %q", got)
	}
}

func TestAlignmentSupported(t *testing.T) {
	if !AlignmentSupported("en") {
		t.Fatal("expected English to support alignment")
	}
	if !AlignmentSupported("japanese") {
		t.Fatal("expected word forms to resolve before the support check")
	}
	if AlignmentSupported("sv") {
		t.Fatal("Swedish has no default alignment model")
	}
	if AlignmentSupported("zz") {
		t.Fatal("unknown codes must not claim alignment support")
	}
}
