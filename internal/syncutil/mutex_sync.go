//go:build !deadlock

// Package syncutil provides the mutex types used throughout go-tiqiaa.
// The default build compiles down to plain sync.Mutex and sync.RWMutex;
// building with -tags=deadlock swaps in github.com/sasha-s/go-deadlock so
// lock-ordering bugs surface during development instead of in the field.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}
