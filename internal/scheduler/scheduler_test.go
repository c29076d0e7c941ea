package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunRearmsAfterCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	s := New(Options{Delay: time.Millisecond}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context) error {
		runs++
		if runs == 3 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runs != 3 {
		t.Fatalf("expected 3 runs before cancel, got %d", runs)
	}
}

func TestRunContinuesAfterJobError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	s := New(Options{Delay: time.Millisecond}, zerolog.Nop())
	_ = s.Run(ctx, func(context.Context) error {
		runs++
		if runs == 2 {
			cancel()
			return nil
		}
		return errors.New("job failed")
	})

	if runs != 2 {
		t.Fatalf("job error 不应终止循环, 实际运行 %d 次", runs)
	}
}

func TestRunStartupDelayHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Options{Delay: time.Minute, StartupDelay: time.Hour}, zerolog.Nop())
	start := time.Now()
	err := s.Run(ctx, func(context.Context) error {
		t.Fatal("job must not run after cancellation")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancelled startup delay must return promptly")
	}
}
