package textutil_test

import (
	"testing"

	"battery/internal/textutil"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"stroop_colorword", "stroop_colorword"},
		{"task: run*2", "task- run-2"},
		{"a/b\\c", "a-b-c"},
		{"  what? ", "what"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Digit Naming", "digit_naming"},
		{"stroop_colorword", "stroop_colorword"},
		{"__weird__", "weird"},
		{"", "unknown"},
		{"!!!", "unknown"},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
