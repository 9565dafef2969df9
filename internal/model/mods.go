package model

import (
	"sort"
	"strings"
)

// modVocabulary is the fixed set of two-letter mod codes, grounded on
// original_source/include/DosuConfig.h's MOD_* key list.
var modVocabulary = map[string]bool{
	"EZ": true, "NF": true, "HT": true, "HR": true, "SD": true, "PF": true,
	"DT": true, "NC": true, "HD": true, "FL": true, "RX": true, "AP": true,
	"SO": true, "AT": true, "CM": true, "RD": true, "TP": true, "MR": true,
	"FI": true, "CP": true,
	"1K": true, "2K": true, "3K": true, "4K": true, "5K": true, "6K": true,
	"7K": true, "8K": true, "9K": true,
}

// Mods is an unordered set of two-letter mod codes.
type Mods map[string]struct{}

// NewMods builds a Mods set from a slice of codes, uppercasing each and
// dropping unknown codes.
func NewMods(codes []string) Mods {
	m := make(Mods, len(codes))
	for _, c := range codes {
		uc := strings.ToUpper(strings.TrimSpace(c))
		if uc == "" {
			continue
		}
		if !modVocabulary[uc] {
			continue
		}
		m[uc] = struct{}{}
	}
	return m
}

// ParseMods parses a canonical or arbitrarily-ordered concatenated mod
// string (e.g. "HDDT") into a Mods set, by greedily consuming two
// characters at a time.
func ParseMods(s string) Mods {
	s = strings.ToUpper(strings.TrimSpace(s))
	m := make(Mods)
	for i := 0; i+2 <= len(s); i += 2 {
		code := s[i : i+2]
		if modVocabulary[code] {
			m[code] = struct{}{}
		}
	}
	return m
}

// Canonical returns the deterministic (lexicographically sorted) uppercase
// concatenation of the set's members. The empty set canonicalizes to "".
func (m Mods) Canonical() string {
	codes := make([]string, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return strings.Join(codes, "")
}

// Canonicalize is a convenience wrapper: parse then re-render canonically.
func Canonicalize(s string) string {
	return ParseMods(s).Canonical()
}
