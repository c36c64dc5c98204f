package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_RefillsOverTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if !l.Allow("ip", 2, 1) {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	if l.Allow("ip", 2, 1) {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("other", 2, 1) {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(time.Second)
	if !l.Allow("ip", 2, 1) {
		t.Fatalf("one token should have been refilled")
	}
}
