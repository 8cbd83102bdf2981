// Package workerutil provides panic-protected goroutine helpers used by the
// worker runtime.
package workerutil

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var goroutineCounter int64

// Count returns the number of goroutines spawned via SafeGo/SafeGoWithContext.
func Count() int64 { return atomic.LoadInt64(&goroutineCounter) }

// SafeGo runs fn in a goroutine with panic recovery; a panic is logged but
// never crashes the process.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)
	go func() {
		defer recoverAndLog(logger, name)
		fn()
	}()
}

// SafeGoWithContext runs fn in a goroutine with panic recovery, skipping fn
// entirely if ctx is already cancelled by the time the goroutine starts.
func SafeGoWithContext(ctx context.Context, logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)
	go func() {
		defer recoverAndLog(logger, name)

		select {
		case <-ctx.Done():
			logger.Debug().Str("goroutine", name).Msg("goroutine cancelled before start")
			return
		default:
		}
		fn()
	}()
}

func recoverAndLog(logger arbor.ILogger, name string) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(buf[:n])).
			Msg("recovered from panic in goroutine")
	}
}
