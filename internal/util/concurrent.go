package util

import "sync"

// DoWorkList runs work on every item of list and returns the results in
// list order. At most limit calls run at once; limit <= 0 means one
// goroutine per item.
func DoWorkList[T any, R any](list []T, limit int, work func(T) R) []R {
	results := make([]R, len(list))
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	sem := make(chan struct{}, max(limit, 1))
	var wg sync.WaitGroup

	for i, item := range list {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, value T) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[index] = work(value)
		}(i, item)
	}

	wg.Wait()
	return results
}
