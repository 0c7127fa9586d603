package engine

import (
	"sync"
	"testing"
)

func TestAdmissionSingleHolder(t *testing.T) {
	a := NewAdmission()

	if !a.TryAcquire("AAPL") {
		t.Fatal("first acquire failed")
	}
	if a.TryAcquire("AAPL") {
		t.Error("second acquire succeeded while held")
	}
	if !a.TryAcquire("MSFT") {
		t.Error("different symbol blocked")
	}

	a.Release("AAPL")
	if !a.TryAcquire("AAPL") {
		t.Error("acquire failed after release")
	}
}

func TestAdmissionConcurrentRace(t *testing.T) {
	a := NewAdmission()

	const racers = 50
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.TryAcquire("TSLA") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("%d goroutines acquired the symbol, want exactly 1", n)
	}
	if !a.Active("TSLA") {
		t.Error("winner's slot not recorded")
	}
}

func TestAdmissionReleaseUnheldIsNoop(t *testing.T) {
	a := NewAdmission()
	a.Release("GOOG") // must not panic
	if a.Active("GOOG") {
		t.Error("released symbol reported active")
	}
}
