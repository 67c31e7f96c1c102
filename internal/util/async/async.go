// Package async provides helpers for fan-out execution of independent
// operations. Results are joined before the caller proceeds, so parallel
// sections never leak goroutines into sequential ones.
package async

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Task is a named asynchronous operation.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunAll executes every task concurrently and waits for all of them. Unlike
// a fail-fast group, it collects every failure: one unreachable node must
// not mask another. The returned error joins all task errors, each wrapped
// with its task name, in name order.
func RunAll(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	type result struct {
		name string
		err  error
	}

	results := make(chan result, len(tasks))
	for _, task := range tasks {
		go func() {
			results <- result{name: task.Name, err: task.Func(ctx)}
		}()
	}

	var failed []result
	for range len(tasks) {
		res := <-results
		if res.err != nil {
			failed = append(failed, res)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].name < failed[j].name })

	errs := make([]error, len(failed))
	for i, res := range failed {
		errs[i] = fmt.Errorf("%s: %w", res.name, res.err)
	}
	return errors.Join(errs...)
}
