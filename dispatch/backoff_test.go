package dispatch

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_DoublesUntilCap(t *testing.T) {
	max := 5 * time.Minute
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, 5 * time.Minute},
		{30, 5 * time.Minute},
	}
	for _, c := range cases {
		if got := backoff(c.attempts, max); got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestBackoff_ZeroAttemptsTreatedAsFirst(t *testing.T) {
	if got := backoff(0, time.Minute); got != time.Second {
		t.Errorf("backoff(0) = %v, want 1s", got)
	}
}

func TestJitter_WithinBound(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		j := jitter(r, time.Second)
		if j < 0 || j >= time.Second {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
}

func TestJitter_ZeroMax(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	if j := jitter(r, 0); j != 0 {
		t.Errorf("jitter(0) = %v, want 0", j)
	}
}
