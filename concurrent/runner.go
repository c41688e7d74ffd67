package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// WorkerFunc processes one item. It reports progress on messages and sends
// either a result or an error for the item.
type WorkerFunc[T any, R any] func(
	ctx context.Context,
	item T,
	messages chan<- string,
	results chan<- R,
	errors chan<- error,
)

type RunnerConfig struct {
	MaxConcurrency int // 0 means unlimited
	LogPrefix      string
}

// Runner fans items out to goroutines and gathers what they report.
type Runner[T any, R any] struct {
	config RunnerConfig
}

func NewRunner[T any, R any](config RunnerConfig) *Runner[T, R] {
	if config.LogPrefix == "" {
		config.LogPrefix = "Runner"
	}
	return &Runner[T, R]{
		config: config,
	}
}

type RunResult[R any] struct {
	Results []R
	Errors  []error
}

// Err joins every worker error, or returns nil when all items succeeded.
func (r RunResult[R]) Err() error {
	return errors.Join(r.Errors...)
}

// Run calls worker for every item and waits for all of them. Items that have
// not started when ctx is cancelled are skipped and reported with ctx.Err().
func (r *Runner[T, R]) Run(ctx context.Context, items []T, worker WorkerFunc[T, R]) RunResult[R] {
	if len(items) == 0 {
		return RunResult[R]{
			Results: []R{},
			Errors:  []error{},
		}
	}

	var collectors sync.WaitGroup

	messages := make(chan string)
	collectors.Add(1)
	go func() {
		defer collectors.Done()
		for message := range messages {
			r.logInfo(message)
		}
	}()

	results := make(chan R)
	resultsList := []R{}
	collectors.Add(1)
	go func() {
		defer collectors.Done()
		for result := range results {
			resultsList = append(resultsList, result)
		}
	}()

	errs := make(chan error)
	errorsList := []error{}
	collectors.Add(1)
	go func() {
		defer collectors.Done()
		for err := range errs {
			errorsList = append(errorsList, err)
		}
	}()

	var throttle chan struct{}
	if r.config.MaxConcurrency > 0 {
		throttle = make(chan struct{}, r.config.MaxConcurrency)
	}

	var workers sync.WaitGroup
	skipped := 0
	for _, item := range items {
		acquired := false
		if throttle != nil {
			select {
			case throttle <- struct{}{}:
				acquired = true
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			if acquired {
				<-throttle
			}
			skipped++
			continue
		}

		workers.Add(1)
		go func(item T) {
			defer workers.Done()
			if throttle != nil {
				defer func() { <-throttle }()
			}
			worker(ctx, item, messages, results, errs)
		}(item)
	}

	workers.Wait()
	if skipped > 0 {
		r.logInfo(fmt.Sprintf("cancelled, skipped %d of %d items", skipped, len(items)))
		for i := 0; i < skipped; i++ {
			errs <- ctx.Err()
		}
	}

	close(messages)
	close(results)
	close(errs)
	collectors.Wait()

	return RunResult[R]{
		Results: resultsList,
		Errors:  errorsList,
	}
}

func (r *Runner[T, R]) logInfo(message string) {
	log.Info(fmt.Sprintf("%s: %s", r.config.LogPrefix, message))
}
