package waiter

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rorqualx/proxydl/internal/types"
)

type counter struct {
	n atomic.Int64
}

func (c *counter) String() string {
	return "count=" + strconv.FormatInt(c.n.Load(), 10)
}

func TestPollImmediateSuccess(t *testing.T) {
	start := time.Now()
	out, err := Poll(context.Background(), 1, func(int) bool { return true }, time.Second, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !out.Satisfied {
		t.Fatal("Expected condition to be satisfied")
	}
	if out.Polls != 1 {
		t.Errorf("Polls = %d, want 1", out.Polls)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("Immediate success should not sleep, took %v", time.Since(start))
	}
}

func TestPollBecomesTrue(t *testing.T) {
	c := &counter{}
	go func() {
		time.Sleep(120 * time.Millisecond)
		c.n.Add(1)
	}()

	out, err := Poll(context.Background(), c, func(c *counter) bool { return c.n.Load() > 0 }, 2*time.Second, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !out.Satisfied {
		t.Fatal("Expected condition to become satisfied")
	}
	if out.Polls < 2 {
		t.Errorf("Polls = %d, want at least 2", out.Polls)
	}
	if out.Elapsed >= 2*time.Second {
		t.Errorf("Elapsed = %v, should return well before timeout", out.Elapsed)
	}
}

func TestPollTimeout(t *testing.T) {
	timeout := 200 * time.Millisecond
	start := time.Now()
	out, err := Poll(context.Background(), 0, func(int) bool { return false }, timeout, 80*time.Millisecond)
	took := time.Since(start)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if out.Satisfied {
		t.Fatal("Expected timeout")
	}
	if !out.TimedOut() {
		t.Error("TimedOut() should be true")
	}
	if took < timeout {
		t.Errorf("Returned after %v, before the %v timeout", took, timeout)
	}
	// The last sleep is shortened to the remaining budget.
	if took > timeout+150*time.Millisecond {
		t.Errorf("Returned after %v, overshot timeout by more than one interval", took)
	}
	// 0ms, 80ms, 160ms, 200ms
	if out.Polls < 3 || out.Polls > 4 {
		t.Errorf("Polls = %d, want 4", out.Polls)
	}
}

func TestPollZeroTimeout(t *testing.T) {
	out, err := Poll(context.Background(), 0, func(int) bool { return false }, 0, time.Second)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if out.Satisfied || out.Polls != 1 {
		t.Errorf("Expected single failed evaluation, got %+v", out)
	}
}

func TestPollContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Poll(ctx, 0, func(int) bool { return false }, 5*time.Second, 20*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Poll() error = %v, want context.Canceled", err)
	}
}

func TestPollStatefulCondition(t *testing.T) {
	// Condition closing over the previous observation, as used to detect
	// a counter that stopped changing.
	c := &counter{}
	c.n.Store(3)
	prev := int64(-1)
	stable := func(c *counter) bool {
		cur := c.n.Load()
		same := cur == prev
		prev = cur
		return same
	}

	out, err := Poll(context.Background(), c, stable, time.Second, MinInterval)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !out.Satisfied || out.Polls != 2 {
		t.Errorf("Expected stability on second poll, got %+v", out)
	}
}

func TestUntilTimeoutError(t *testing.T) {
	c := &counter{}
	err := Until(context.Background(), c, func(c *counter) bool { return c.n.Load() > 0 }, 100*time.Millisecond, MinInterval)
	if !errors.Is(err, types.ErrConditionTimedOut) {
		t.Fatalf("Until() error = %v, want ErrConditionTimedOut", err)
	}

	var cte *types.ConditionTimeoutError
	if !errors.As(err, &cte) {
		t.Fatal("Expected *types.ConditionTimeoutError")
	}
	if cte.Last != "count=0" {
		t.Errorf("Last = %q, want count=0", cte.Last)
	}
	if cte.Timeout != 100*time.Millisecond {
		t.Errorf("Timeout = %v, want 100ms", cte.Timeout)
	}
}

func TestUntilSatisfied(t *testing.T) {
	if err := Until(context.Background(), 1, func(v int) bool { return v == 1 }, time.Second, MinInterval); err != nil {
		t.Errorf("Until() error = %v", err)
	}
}

func TestFloor(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, MinInterval},
		{10 * time.Millisecond, MinInterval},
		{MinInterval, MinInterval},
		{time.Second, time.Second},
	}
	for _, tt := range tests {
		if got := Floor(tt.in); got != tt.want {
			t.Errorf("Floor(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
