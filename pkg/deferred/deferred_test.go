package deferred

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_TransformsAfterResolution(t *testing.T) {
	in := Pending[string]()
	out := Map(in, func(s string) (int, error) {
		return len(s), nil
	})

	if _, ok := out.Peek(); ok {
		t.Fatal("Expected derived value to be pending before input resolves")
	}

	in.Resolve("hostname")

	got, ok := out.Peek()
	if !ok {
		t.Fatal("Expected derived value to be resolved")
	}
	if got != len("hostname") {
		t.Errorf("Expected %d, got %d", len("hostname"), got)
	}
}

func TestMap_DoesNotBlockCaller(t *testing.T) {
	in := Pending[string]()

	done := make(chan struct{})
	go func() {
		_ = Map(in, func(s string) (string, error) { return s, nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Map blocked on a pending input")
	}
}

func TestMap_ContinuationNeverSeesPendingInput(t *testing.T) {
	in := Pending[string]()

	var observed atomic.Value
	out := Map(in, func(s string) (string, error) {
		observed.Store(s)
		return s, nil
	})

	if observed.Load() != nil {
		t.Fatal("Continuation ran before input resolved")
	}

	in.Resolve("ready")

	if _, err := out.Wait(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if observed.Load() != "ready" {
		t.Errorf("Continuation observed %v, want %q", observed.Load(), "ready")
	}
}

func TestMap_FailurePropagatesWithoutInvokingContinuation(t *testing.T) {
	cause := errors.New("provisioning failed")
	in := Pending[string]()

	invoked := false
	out := Map(in, func(s string) (string, error) {
		invoked = true
		return s, nil
	})

	in.Fail(cause)

	_, err := out.Wait(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("Expected failure cause to propagate, got: %v", err)
	}
	if invoked {
		t.Error("Continuation must not run when the input failed")
	}
}

func TestMap_FunctionErrorFailsDerivedValue(t *testing.T) {
	in := Resolved("x")
	ferr := errors.New("bad transform")
	out := Map(in, func(string) (string, error) { return "", ferr })

	_, err := out.Wait(context.Background())
	if !errors.Is(err, ferr) {
		t.Errorf("Expected transform error, got: %v", err)
	}
}

func TestThen_SequencesDependentStep(t *testing.T) {
	in := Pending[string]()
	inner := Pending[string]()

	out := Then(in, func(s string) (*Value[string], error) {
		return inner, nil
	})

	in.Resolve("first")
	if _, ok := out.Peek(); ok {
		t.Fatal("Chained value resolved before the inner step")
	}

	inner.Resolve("second")
	got, ok := out.Peek()
	if !ok || got != "second" {
		t.Errorf("Expected %q, got %q (resolved=%v)", "second", got, ok)
	}
}

func TestThen_InnerFailurePropagates(t *testing.T) {
	cause := errors.New("upload failed")
	out := Then(Resolved("x"), func(string) (*Value[int], error) {
		return Failed[int](cause), nil
	})

	_, err := out.Wait(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("Expected inner failure to propagate, got: %v", err)
	}
}

func TestResolve_TwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Expected panic on double resolution")
		}
	}()

	v := Pending[int]()
	v.Resolve(1)
	v.Resolve(2)
}

func TestContinuation_RunsExactlyOnce(t *testing.T) {
	in := Pending[int]()

	var runs int32
	for i := 0; i < 10; i++ {
		Map(in, func(n int) (int, error) {
			atomic.AddInt32(&runs, 1)
			return n, nil
		})
	}

	in.Resolve(7)

	if got := atomic.LoadInt32(&runs); got != 10 {
		t.Errorf("Expected each continuation to run exactly once (10 total), got %d", got)
	}
}

func TestWait_RespectsContextCancellation(t *testing.T) {
	v := Pending[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestResolve_ConcurrentReaders(t *testing.T) {
	v := Pending[string]()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := v.Wait(context.Background())
			if err != nil || got != "shared" {
				t.Errorf("Wait returned (%q, %v)", got, err)
			}
		}()
	}

	v.Resolve("shared")
	wg.Wait()
}
