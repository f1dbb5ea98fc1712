// Package parallel fans independent kernel work items out over goroutines.
//
// The CPU backend splits image operations into planes (one batch entry
// and one channel or channel group each); planes never share output
// memory, so they can be processed in any order.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Upper bound on worker goroutines.
	MinItems   int  // Below this many work items everything runs on the caller's goroutine.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinItems:   2,
	}
}

// Sequential returns a Config that never spawns goroutines.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1}
}

// For executes f(i) for every i in [0, n) and returns once all calls finish.
// Items are claimed dynamically, so uneven item costs balance out.
func For(n int, f func(i int), cfg Config) {
	workers := min(cfg.NumWorkers, n)
	if !cfg.Enabled || n < cfg.MinItems || workers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var (
		next atomic.Int64
		wg   sync.WaitGroup
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= n {
					return
				}
				f(i)
			}
		}()
	}
	wg.Wait()
}

// ForPlanes executes f(b, c) for every (batch, channel) pair.
// Common in NCHW operations such as pooling, normalization and grouped convolution.
func ForPlanes(batch, channels int, f func(b, c int), cfg Config) {
	For(batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
