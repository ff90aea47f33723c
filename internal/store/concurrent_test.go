package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestConcurrency_ClaimNextEligibleIsExclusive drives many goroutines at the
// claim query simultaneously and checks no job is ever handed to two
// claimants — the property the worker pool depends on to never double-encode
// a file.
func TestConcurrency_ClaimNextEligibleIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const numJobs = 100
	for i := 0; i < numJobs; i++ {
		if _, err := s.InsertJob(ctx, fmt.Sprintf("/media/video_%d.mkv", i), fmt.Sprintf("hash-%d", i), 0); err != nil {
			t.Fatalf("InsertJob %d: %v", i, err)
		}
	}

	var (
		mu     sync.Mutex
		seen   = make(map[string]bool)
		claims int
	)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := s.ClaimNextEligible(ctx, 1, time.Now(), nil)
				if err != nil {
					t.Errorf("ClaimNextEligible: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, j := range claimed {
					if seen[j.ID] {
						t.Errorf("job %s claimed twice", j.ID)
					}
					seen[j.ID] = true
					claims++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != numJobs {
		t.Errorf("claimed %d jobs total, want %d", claims, numJobs)
	}
}
