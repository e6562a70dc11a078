package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recent GC pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, p := range stats.Pause {
			if p > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", p, threshold)
			}
		}
		return nil
	}
}

// StockCheck fails when any level reported by levels is below minimum. The
// error lists the short items in name order.
func StockCheck(levels func() map[string]int, minimum int) CheckFunc {
	return func(_ context.Context) error {
		var short []string
		for name, n := range levels() {
			if n < minimum {
				short = append(short, name)
			}
		}
		if len(short) == 0 {
			return nil
		}
		sort.Strings(short)
		return errors.Errorf("stock below %d: %s", minimum, strings.Join(short, ", "))
	}
}
