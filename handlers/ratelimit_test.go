package handlers

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestIPLimiter(t *testing.T) {
	limiter := newIPLimiter(rate.Every(time.Hour), 3)

	ip := "127.0.0.1"

	// Burst is allowed
	for i := 0; i < 3; i++ {
		if !limiter.Allow(ip) {
			t.Fatalf("Expected request %d within burst to be allowed", i+1)
		}
	}

	// Burst exhausted
	if limiter.Allow(ip) {
		t.Error("Expected request beyond burst to be denied")
	}

	// Other IPs are unaffected
	if !limiter.Allow("10.0.0.1") {
		t.Error("Expected a different IP to be allowed")
	}
}

func TestIPLimiterParallel(t *testing.T) {
	limiter := newIPLimiter(rate.Every(time.Hour), 3)
	ip := "10.0.0.2"

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- limiter.Allow(ip)
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 3 {
		t.Errorf("Expected exactly 3 allowed under concurrency, got %d", count)
	}
}
