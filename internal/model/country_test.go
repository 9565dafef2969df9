package model

import "testing"

func TestToAlpha2RoundTrip(t *testing.T) {
	cases := []string{"us", "US", " de ", "jp3x"}
	for _, c := range cases {
		once := ToAlpha2(c)
		twice := ToAlpha2(once)
		if once != twice {
			t.Fatalf("toAlpha2 not idempotent for %q: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestToAlpha2Truncates(t *testing.T) {
	if got := ToAlpha2("usa"); got != "US" {
		t.Fatalf("expected US, got %q", got)
	}
}
