package recon

import (
	"sync"
	"testing"
)

func TestDateLocksSerializeSameDate(t *testing.T) {
	locks := newDateLocks()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.acquire("2024-03-15")
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestDateLocksIndependentDates(t *testing.T) {
	locks := newDateLocks()

	releaseA := locks.acquire("2024-03-15")
	defer releaseA()

	// A different date must not block.
	done := make(chan struct{})
	go func() {
		release := locks.acquire("2024-03-16")
		release()
		close(done)
	}()
	<-done
}

func TestDateLocksReacquireAfterRelease(t *testing.T) {
	locks := newDateLocks()

	release := locks.acquire("2024-03-15")
	release()

	release = locks.acquire("2024-03-15")
	release()
}
