package async

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/imamik/spinless/internal/apperr"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel starts all tasks, waits for every one of them and returns
// their failures aggregated in task order, or nil.
func RunParallel(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	errs := make([]error, len(tasks))
	done := make(chan int, len(tasks))

	for i, task := range tasks {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%s: panic: %v", task.Name, r)
				}
				done <- i
			}()
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
		}()
	}

	for range len(tasks) {
		<-done
	}

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		result.ErrorFormat = apperr.JoinMessages
	}
	return result.ErrorOrNil()
}
