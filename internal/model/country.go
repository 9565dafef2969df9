package model

import "strings"

// ToAlpha2 normalizes a country code to its canonical two-letter
// ISO-3166-alpha-2 uppercase form. Anything longer than two characters is
// truncated to its first two runes; anything shorter is left as-is
// (callers reject it via RankingsUser.Valid, which requires length 2).
func ToAlpha2(code string) string {
	uc := strings.ToUpper(strings.TrimSpace(code))
	if len(uc) <= 2 {
		return uc
	}
	return uc[:2]
}
