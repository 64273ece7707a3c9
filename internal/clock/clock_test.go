package clock

import (
	"testing"
	"time"
)

func TestSystemNowIsUTC(t *testing.T) {
	now := System().Now()
	if now.Location() != time.UTC {
		t.Errorf("System().Now() location = %v, want UTC", now.Location())
	}
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	fake.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if got := fake.Now(); !got.Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", got, want)
	}

	// Repeated reads do not move the clock.
	if got := fake.Now(); !got.Equal(want) {
		t.Errorf("second read moved the clock: %v", got)
	}
}

func TestFakeSet(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	target := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	fake.Set(target)
	if got := fake.Now(); !got.Equal(target) {
		t.Errorf("Now() after Set = %v, want %v", got, target)
	}
}
