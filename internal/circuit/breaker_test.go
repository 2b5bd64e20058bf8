package circuit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"Closed state", StateClosed, "CLOSED"},
		{"Open state", StateOpen, "OPEN"},
		{"Half-open state", StateHalfOpen, "HALF_OPEN"},
		{"Unknown state", State(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	b := New("test", Config{})

	if b.name != "test" {
		t.Errorf("name = %q, want %q", b.name, "test")
	}
	if b.state != StateClosed {
		t.Errorf("initial state = %v, want %v", b.state, StateClosed)
	}
	if b.config.MaxRequests != 1 {
		t.Errorf("default MaxRequests = %d, want 1", b.config.MaxRequests)
	}
	if b.config.Interval != 60*time.Second {
		t.Errorf("default Interval = %v, want %v", b.config.Interval, 60*time.Second)
	}
	if b.config.Timeout != 60*time.Second {
		t.Errorf("default Timeout = %v, want %v", b.config.Timeout, 60*time.Second)
	}
	if b.config.ReadyToTrip == nil {
		t.Error("default ReadyToTrip should not be nil")
	}
	if b.config.IsSuccessful == nil {
		t.Error("default IsSuccessful should not be nil")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	t.Parallel()

	config := Config{
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
	}
	b := New("custom", config)

	if b.config.MaxRequests != 5 {
		t.Errorf("MaxRequests = %d, want 5", b.config.MaxRequests)
	}
	if b.config.Interval != 10*time.Second {
		t.Errorf("Interval = %v, want %v", b.config.Interval, 10*time.Second)
	}
	if b.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", b.config.Timeout, 30*time.Second)
	}
}

func TestDefaultReadyToTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		counts   Counts
		wantTrip bool
	}{
		{"not enough requests", Counts{Requests: 10, TotalFailures: 5}, false},
		{"enough requests but low failure rate", Counts{Requests: 20, TotalFailures: 8}, false},
		{"should trip - 50% failure threshold", Counts{Requests: 20, TotalFailures: 10}, true},
		{"should trip - above threshold", Counts{Requests: 100, TotalFailures: 60}, true},
		{"zero requests", Counts{Requests: 0, TotalFailures: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := defaultReadyToTrip(tt.counts); got != tt.wantTrip {
				t.Errorf("defaultReadyToTrip() = %v, want %v", got, tt.wantTrip)
			}
		})
	}
}

func TestDefaultIsSuccessful(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is successful", nil, true},
		{"non-nil error is not successful", errors.New("test error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := defaultIsSuccessful(tt.err); got != tt.want {
				t.Errorf("defaultIsSuccessful() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_Execute_Success(t *testing.T) {
	t.Parallel()

	b := New("test", Config{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute})

	callCount := 0
	err := b.Execute(func() error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("read called %d times, want 1", callCount)
	}

	counts := b.GetCounts()
	if counts.Requests != 1 {
		t.Errorf("Requests = %d, want 1", counts.Requests)
	}
	if counts.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", counts.TotalSuccesses)
	}
}

func TestBreaker_Execute_Failure(t *testing.T) {
	t.Parallel()

	b := New("test", Config{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute})

	wantErr := errors.New("test failure")
	err := b.Execute(func() error { return wantErr })
	if err != wantErr {
		t.Errorf("Execute() error = %v, want %v", err, wantErr)
	}

	counts := b.GetCounts()
	if counts.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", counts.TotalFailures)
	}
}

func TestBreaker_StateTransitions(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var stateChanges []string

	b := New("test", Config{
		MaxRequests: 2,
		Interval:    100 * time.Millisecond,
		Timeout:     100 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			stateChanges = append(stateChanges, from.String()+"->"+to.String())
		},
	})

	if b.GetState() != StateClosed {
		t.Errorf("initial state = %v, want %v", b.GetState(), StateClosed)
	}

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errors.New("failure") })
	}
	if b.GetState() != StateOpen {
		t.Errorf("state after failures = %v, want %v", b.GetState(), StateOpen)
	}

	time.Sleep(150 * time.Millisecond)
	if b.GetState() != StateHalfOpen {
		t.Errorf("state after timeout = %v, want %v", b.GetState(), StateHalfOpen)
	}

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute in half-open failed: %v", err)
	}
	if b.GetState() != StateClosed {
		t.Errorf("state after success in half-open = %v, want %v", b.GetState(), StateClosed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stateChanges) < 2 {
		t.Errorf("expected at least 2 state changes, got %d: %v", len(stateChanges), stateChanges)
	}
}

func TestBreaker_OpenState_RejectsRequests(t *testing.T) {
	t.Parallel()

	b := New("test", Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errors.New("failure") })
	}

	callCount := 0
	err := b.Execute(func() error {
		callCount++
		return nil
	})
	if err != ErrOpenState {
		t.Errorf("Execute() error = %v, want %v", err, ErrOpenState)
	}
	if callCount != 0 {
		t.Error("read should not have been called when breaker is open")
	}
}

func TestBreaker_HalfOpen_TooManyRequests(t *testing.T) {
	t.Parallel()

	b := New("test", Config{
		MaxRequests: 1,
		Interval:    50 * time.Millisecond,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_ = b.Execute(func() error { return errors.New("failure") })
	time.Sleep(100 * time.Millisecond)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = b.Execute(func() error {
			close(started)
			<-done
			return nil
		})
	}()
	<-started

	err2 := b.Execute(func() error { return nil })
	close(done)

	if err2 != ErrTooManyRequests {
		t.Errorf("second read error = %v, want %v", err2, ErrTooManyRequests)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := New("test", Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_ = b.Execute(func() error { return errors.New("failure") })
	if b.GetState() != StateOpen {
		t.Errorf("state = %v, want %v", b.GetState(), StateOpen)
	}

	b.Reset()
	if b.GetState() != StateClosed {
		t.Errorf("state after reset = %v, want %v", b.GetState(), StateClosed)
	}

	counts := b.GetCounts()
	if counts.Requests != 0 {
		t.Errorf("Requests after reset = %d, want 0", counts.Requests)
	}
	if counts.TotalFailures != 0 {
		t.Errorf("TotalFailures after reset = %d, want 0", counts.TotalFailures)
	}
}

func TestBreaker_Name(t *testing.T) {
	t.Parallel()

	b := New("my-device", Config{})
	if b.Name() != "my-device" {
		t.Errorf("Name() = %q, want %q", b.Name(), "my-device")
	}
}

func TestCounts_Operations(t *testing.T) {
	t.Parallel()

	var counts Counts

	counts.onRequest()
	if counts.Requests != 1 {
		t.Errorf("Requests = %d, want 1", counts.Requests)
	}
	if counts.LastActivity.IsZero() {
		t.Error("LastActivity not set after onRequest")
	}

	counts.onSuccess()
	if counts.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", counts.TotalSuccesses)
	}
	if counts.ConsecutiveSuccesses != 1 {
		t.Errorf("ConsecutiveSuccesses = %d, want 1", counts.ConsecutiveSuccesses)
	}
	if counts.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", counts.ConsecutiveFailures)
	}

	counts.onFailure()
	if counts.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", counts.TotalFailures)
	}
	if counts.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", counts.ConsecutiveFailures)
	}
	if counts.ConsecutiveSuccesses != 0 {
		t.Errorf("ConsecutiveSuccesses = %d, want 0 after failure", counts.ConsecutiveSuccesses)
	}

	counts.clear()
	if counts.Requests != 0 || counts.TotalSuccesses != 0 || counts.TotalFailures != 0 {
		t.Error("counts not properly cleared")
	}
	if !counts.LastActivity.IsZero() {
		t.Error("LastActivity not cleared")
	}
}

func TestBreaker_ConcurrentExecute(t *testing.T) {
	t.Parallel()

	b := New("concurrent", Config{MaxRequests: 100})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(func() error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if counts := b.GetCounts(); counts.TotalSuccesses != 10 {
		t.Errorf("TotalSuccesses = %d, want 10", counts.TotalSuccesses)
	}
}
