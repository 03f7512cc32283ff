package runner

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

type Job func() error

// RunPool executes jobs with at most maxWorkers concurrently and returns the
// errors in job order. With one worker the jobs run inline, in order.
func RunPool(maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	results := make([]error, len(jobs))
	if maxWorkers == 1 || len(jobs) < 2 {
		for i, j := range jobs {
			results[i] = j()
		}
		return compact(results)
	}

	pool, err := ants.NewPool(maxWorkers)
	if err != nil {
		return []error{fmt.Errorf("creating worker pool: %w", err)}
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = job()
		}); err != nil {
			wg.Done()
			results[i] = fmt.Errorf("submitting job %d: %w", i, err)
		}
	}
	wg.Wait()
	return compact(results)
}

func compact(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
