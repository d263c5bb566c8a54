package core

import (
	"context"
	"testing"
	"time"
)

func TestPacerEnforcesInterval(t *testing.T) {
	p := NewPacer(20 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// First call is immediate, the next two wait one interval each.
	if elapsed < 40*time.Millisecond {
		t.Errorf("three sends finished in %v, expected at least 40ms", elapsed)
	}
}

func TestPacerZeroIntervalNeverBlocks(t *testing.T) {
	p := NewPacer(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unpaced waits took %v", elapsed)
	}
}

func TestPacerWaitCancellable(t *testing.T) {
	p := NewPacer(time.Minute)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
