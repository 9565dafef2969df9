package model

import "testing"

func TestModsCanonicalRoundTrip(t *testing.T) {
	cases := []string{"", "HD", "DTHD", "HDDTHR", "NCFLHDSD"}
	for _, s := range cases {
		c1 := Canonicalize(s)
		parsedThenCanon := ParseMods(c1).Canonical()
		if c1 != parsedThenCanon {
			t.Fatalf("canonicalize(%q)=%q but canonicalize(canonicalize(%q))=%q", s, c1, s, parsedThenCanon)
		}
	}
}

func TestParseModsIgnoresUnknownCodes(t *testing.T) {
	m := ParseMods("HDZZDT")
	if _, ok := m["ZZ"]; ok {
		t.Fatalf("unexpected unknown code ZZ accepted")
	}
	if _, ok := m["HD"]; !ok {
		t.Fatalf("expected HD in parsed set")
	}
}

func TestCanonicalDeterministicOrder(t *testing.T) {
	a := NewMods([]string{"DT", "HD"}).Canonical()
	b := NewMods([]string{"HD", "DT"}).Canonical()
	if a != b {
		t.Fatalf("canonical form should not depend on insertion order: %q != %q", a, b)
	}
	if a != "DTHD" {
		t.Fatalf("expected lexicographic order DTHD, got %q", a)
	}
}

func TestEmptyModsCanonicalizesToEmptyString(t *testing.T) {
	if got := NewMods(nil).Canonical(); got != "" {
		t.Fatalf("expected empty canonical form, got %q", got)
	}
}
