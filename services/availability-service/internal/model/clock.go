package model

import (
	"errors"
	"fmt"
	"time"
)

// Clock is a wall-clock time of day counted in minutes since midnight.
// 1440 ("24:00") is accepted so a working day can end at midnight.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60
)

var ErrInvalidClock = errors.New("time must be formatted as HH:MM")

func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrInvalidClock
	}
	hh, ok1 := twoDigits(s[0], s[1])
	mm, ok2 := twoDigits(s[3], s[4])
	if !ok1 || !ok2 || mm > 59 {
		return 0, ErrInvalidClock
	}
	if hh > 24 || (hh == 24 && mm != 0) {
		return 0, ErrInvalidClock
	}
	return Clock(hh*60 + mm), nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// On anchors the clock to the UTC calendar date of day.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(c.Duration())
}

func (c Clock) Valid() bool {
	return c >= Midnight && c <= EndOfDay
}
