package utils

import "sync"

// ParallelMap 使用固定数量的 worker 并发处理 input，结果顺序与输入一致。
// - workers <= 1 或只有一个元素时直接串行处理
// - fn 内部的 panic 由调用方自行 recover
func ParallelMap[T any, R any](input []T, workers int, fn func(T) R) []R {
	n := len(input)
	results := make([]R, n)
	if n == 0 {
		return results
	}
	if workers <= 1 || n == 1 {
		for i, v := range input {
			results[i] = fn(v)
		}
		return results
	}
	if workers > n {
		workers = n
	}

	indexes := make(chan int, n)
	for i := 0; i < n; i++ {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = fn(input[i])
			}
		}()
	}
	wg.Wait()
	return results
}
