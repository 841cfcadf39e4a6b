package model

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{
		"00:00": 0,
		"09:05": 9*60 + 5,
		"13:30": 13*60 + 30,
		"23:59": 23*60 + 59,
		"24:00": EndOfDay,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %d, got %d", in, want, got)
		}
		if got.String() != in {
			t.Fatalf("expected %q to round trip, got %q", in, got.String())
		}
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "9:00", "09:60", "24:01", "25:00", "ab:cd", "09-00", "09:000"} {
		if _, err := ParseClock(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestClockOn(t *testing.T) {
	day := time.Date(2026, 3, 2, 17, 45, 0, 0, time.FixedZone("X", 3*3600))
	got := Clock(9 * 60).On(day)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if end := EndOfDay.On(day); !end.Equal(want.Add(15 * time.Hour)) {
		t.Fatalf("expected 24:00 to land on next midnight, got %s", end)
	}
}
