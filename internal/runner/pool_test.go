package runner_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalnine/trajeval/internal/runner"
)

func TestPoolRunsEveryJob(t *testing.T) {
	if errs := runner.RunPool(4, nil); len(errs) != 0 {
		t.Errorf("empty job list: got %v", errs)
	}
	var count atomic.Int32
	jobs := make([]runner.Job, 25)
	for i := range jobs {
		jobs[i] = func() error {
			count.Add(1)
			return nil
		}
	}
	if errs := runner.RunPool(3, jobs); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if count.Load() != 25 {
		t.Errorf("expected 25 jobs to run, got %d", count.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	jobs := []runner.Job{
		func() error { return nil },
		func() error { time.Sleep(5 * time.Millisecond); return fmt.Errorf("first") },
		func() error { return nil },
		func() error { return fmt.Errorf("second") },
	}
	errs := runner.RunPool(2, jobs)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Error() != "first" || errs[1].Error() != "second" {
		t.Errorf("errors not in job order: %v", errs)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	jobs := make([]runner.Job, 12)
	for i := range jobs {
		jobs[i] = func() error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return nil
		}
	}
	runner.RunPool(3, jobs)
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent jobs, saw %d", peak.Load())
	}
}

func TestPoolSingleWorkerRunsInOrder(t *testing.T) {
	var order []int
	jobs := make([]runner.Job, 5)
	for i := range jobs {
		jobs[i] = func() error {
			order = append(order, i)
			return nil
		}
	}
	runner.RunPool(1, jobs)
	for i, v := range order {
		if v != i {
			t.Fatalf("job order: got %v", order)
		}
	}
}
