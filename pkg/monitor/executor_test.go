package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewExecutor(nil)
	go e.Run(ctx)

	ran := false
	if err := e.Do(ctx, func(context.Context) { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Error("Do returned before the task ran")
	}
}

func TestExecutorSerializes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewExecutor(nil)
	go e.Run(ctx)

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Do(ctx, func(context.Context) {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
			})
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxActive.Load())
	}
}

func TestExecutorStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(nil)
	go e.Run(ctx)
	cancel()
	<-e.done

	err := e.Do(context.Background(), func(context.Context) {
		t.Fatal("task must not run after stop")
	})
	if !errors.Is(err, ErrExecutorStopped) {
		t.Errorf("Do error = %v, want ErrExecutorStopped", err)
	}
}

func TestExecutorCallerCancellation(t *testing.T) {
	// Executor never started; a cancelled caller must not hang.
	e := NewExecutor(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, func(context.Context) {
		t.Fatal("task must not run")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do error = %v, want context.Canceled", err)
	}
}
