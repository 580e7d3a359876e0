package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// loopSafely runs f until ctx is done, restarting it after an error or a panic.
func loopSafely(ctx context.Context, logger *zap.SugaredLogger, f func(ctx context.Context) error) {
	for ctx.Err() == nil {
		if err := runSafely(ctx, f); err != nil {
			logger.Errorf("%v, restarting", err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

func runSafely(ctx context.Context, f func(ctx context.Context) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()

	return f(ctx)
}
