package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledRegistryDoesNotCount(t *testing.T) {
	r := NewRegistry(false, false)
	r.Inc(SignInSuccess)

	if got := r.Value(SignInSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	snap := r.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestConcurrentIncrement(t *testing.T) {
	r := NewRegistry(true, false)

	const goroutines = 32
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				r.Inc(RefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got, want := r.Value(RefreshSuccess), uint64(goroutines*perG); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry(true, true)

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	} {
		r.Observe(SignInLatency, d)
	}

	buckets := r.Snapshot().Histograms[SignInLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestCounterAndHistogramIDsDoNotMix(t *testing.T) {
	r := NewRegistry(true, true)
	r.Inc(SignInLatency)
	r.Observe(SignInSuccess, time.Millisecond)

	snap := r.Snapshot()
	if _, ok := snap.Counters[SignInLatency]; ok {
		t.Fatal("histogram id must not appear among counters")
	}
	if _, ok := snap.Histograms[SignInSuccess]; ok {
		t.Fatal("counter id must not appear among histograms")
	}
	if snap.Counters[SignInSuccess] != 0 {
		t.Fatalf("expected untouched counter, got %d", snap.Counters[SignInSuccess])
	}
}

func TestLatencyDisabledOmitsHistograms(t *testing.T) {
	r := NewRegistry(true, false)
	r.Observe(ValidateLatency, time.Millisecond)

	if got := len(r.Snapshot().Histograms); got != 0 {
		t.Fatalf("expected no histograms, got %d", got)
	}
}
