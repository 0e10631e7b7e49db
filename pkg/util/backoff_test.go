package util

import (
	"testing"
	"time"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, 2*time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		exp := min * time.Duration(1<<uint(attempt-1))
		if exp > max {
			exp = max
		}
		for i := 0; i < 50; i++ {
			got := BackoffWithJitter(min, max, attempt)
			if got > exp || got < exp/2 {
				t.Fatalf("attempt %d: %v outside [%v, %v]", attempt, got, exp/2, exp)
			}
		}
	}
}

func TestBackoffWithJitterLargeAttempt(t *testing.T) {
	got := BackoffWithJitter(time.Second, 30*time.Second, 200)
	if got > 30*time.Second || got < 15*time.Second {
		t.Fatalf("unexpected backoff %v", got)
	}
}

func TestBackoffWithJitterDefaults(t *testing.T) {
	got := BackoffWithJitter(0, 0, 0)
	if got <= 0 || got > 50*time.Millisecond {
		t.Fatalf("unexpected default backoff %v", got)
	}
}
