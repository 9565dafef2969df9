package config

import "testing"

func TestNormalizeHourBoundaryCases(t *testing.T) {
	cases := map[int]int{
		-1:  23,
		24:  0,
		-25: 23,
		0:   0,
		23:  23,
		25:  1,
	}
	for in, want := range cases {
		if got := normalizeHour(in); got != want {
			t.Fatalf("normalizeHour(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNormalizeClampsLogLevelOutOfRange(t *testing.T) {
	c := &Config{LogLevel: 9}
	c.normalize()
	if c.LogLevel != defaultLogLevel {
		t.Fatalf("expected out-of-range log level to default to %d, got %d", defaultLogLevel, c.LogLevel)
	}

	c2 := &Config{LogLevel: -1}
	c2.normalize()
	if c2.LogLevel != defaultLogLevel {
		t.Fatalf("expected negative log level to default to %d, got %d", defaultLogLevel, c2.LogLevel)
	}
}

func TestNormalizeDefaultsThreadCountWhenBelowOne(t *testing.T) {
	c := &Config{ThreadCount: 0}
	c.normalize()
	if c.ThreadCount < 1 {
		t.Fatalf("expected thread count to default to >= 1, got %d", c.ThreadCount)
	}
}

func TestNormalizePreservesInRangeValues(t *testing.T) {
	c := &Config{LogLevel: 2, ThreadCount: 4, ScrapeRankingsRunHour: 5, TopPlaysRunHour: 6}
	c.normalize()
	if c.LogLevel != 2 || c.ThreadCount != 4 || c.ScrapeRankingsRunHour != 5 || c.TopPlaysRunHour != 6 {
		t.Fatalf("expected in-range values to be preserved, got %+v", c)
	}
}
