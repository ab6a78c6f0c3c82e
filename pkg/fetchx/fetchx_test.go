package fetchx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	logx "stocknotify/pkg/logx"
)

type attemptLog struct {
	mu    sync.Mutex
	times []time.Time
}

func (a *attemptLog) add() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.times = append(a.times, time.Now())
	return len(a.times)
}

func (a *attemptLog) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.times)
}

func (a *attemptLog) gap(i int) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.times[i+1].Sub(a.times[i])
}

func TestRetryBackoffLaw(t *testing.T) {
	t.Parallel()

	var al attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if al.add() <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	base := 50 * time.Millisecond
	cl := New(nil, logx.Nop())
	resp, err := cl.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, Options{
		MaxRetries: 2,
		BaseDelay:  base,
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := al.count(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	// Exponential, no jitter: ~base then ~2*base between attempts.
	if g := al.gap(0); g < base || g > 4*base {
		t.Fatalf("first gap = %v, want about %v", g, base)
	}
	if g := al.gap(1); g < 2*base || g > 6*base {
		t.Fatalf("second gap = %v, want about %v", g, 2*base)
	}
	if al.gap(1) <= al.gap(0) {
		t.Fatalf("backoff did not grow: %v then %v", al.gap(0), al.gap(1))
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	t.Parallel()

	var al attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		al.add()
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cl := New(nil, logx.Nop())
	resp, err := cl.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, Options{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if got := al.count(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (4xx must not retry)", got)
	}
}

func TestRetryOn429(t *testing.T) {
	t.Parallel()

	var al attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if al.add() == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl := New(nil, logx.Nop())
	resp, err := cl.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, Options{
		MaxRetries: 1,
		BaseDelay:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := al.count(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestExhaustedRetriesReturnsResponse(t *testing.T) {
	t.Parallel()

	var al attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		al.add()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cl := New(nil, logx.Nop())
	resp, err := cl.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, Options{
		MaxRetries: 1,
		BaseDelay:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("a still-failing retryable status must be returned, not raised: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := al.count(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestTransportErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	cl := New(nil, logx.Nop())
	_, err := cl.Do(context.Background(), http.MethodGet, url, nil, nil, Options{
		MaxRetries: 1,
		BaseDelay:  10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected transport error after exhausted retries")
	}
}

func TestUserAgentDefaultAndOverride(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
	}))
	defer srv.Close()

	cl := New(nil, logx.Nop())

	resp, err := cl.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, Options{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	custom := http.Header{}
	custom.Set("User-Agent", "probe/9")
	resp, err = cl.Do(context.Background(), http.MethodGet, srv.URL, custom, nil, Options{})
	if err != nil {
		t.Fatalf("Do with custom UA: %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if agents[0] != UserAgent {
		t.Fatalf("default UA = %q, want %q", agents[0], UserAgent)
	}
	if agents[1] != "probe/9" {
		t.Fatalf("override UA = %q, want probe/9", agents[1])
	}
}

func TestPerAttemptTimeout(t *testing.T) {
	t.Parallel()

	var al attemptLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if al.add() == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl := New(nil, logx.Nop())
	resp, err := cl.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, Options{
		MaxRetries: 1,
		BaseDelay:  10 * time.Millisecond,
		Timeout:    100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (timed-out attempt should be retried)", resp.StatusCode)
	}
	if got := al.count(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}
