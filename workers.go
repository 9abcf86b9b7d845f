package ptiff

import (
	"runtime"
	"sync"
)

// forEach runs fn over items on up to workers goroutines and returns the
// first error. A single item, or a single worker, runs inline.
func forEach[W any](workers int, items []W, fn func(W) error) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(items) {
		workers = len(items)
	}
	if workers <= 1 {
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		failed   = make(chan struct{})
	)
	workChan := make(chan W, len(items))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				select {
				case <-failed:
					continue
				default:
				}
				if err := fn(item); err != nil {
					once.Do(func() {
						firstErr = err
						close(failed)
					})
				}
			}
		}()
	}

	for _, item := range items {
		workChan <- item
	}
	close(workChan)
	wg.Wait()

	return firstErr
}
