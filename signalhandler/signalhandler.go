package signalhandler

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
)

var (
	mu       sync.Mutex
	cleanups []func()
)

// RegisterCleanup queues fn to run when a termination signal arrives.
// Cleanups run newest first, so resources close in the opposite order
// they were opened.
func RegisterCleanup(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	cleanups = append(cleanups, fn)
}

// RunCleanups runs the registered cleanups once and forgets them.
func RunCleanups() {
	mu.Lock()
	fns := cleanups
	cleanups = nil
	mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// SetupHandler configures signal handling for safer interaction with C libraries
func SetupHandler() {
	// Create a channel to receive OS signals
	sigChan := make(chan os.Signal, 1)

	// Register for specific signals
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Handle signals in a separate goroutine
	go func() {
		<-sigChan
		RunCleanups()
		os.Exit(0)
	}()
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	// Get the number of CPUs available
	numCPU := runtime.NumCPU()

	// For image processing with CGo, using too many goroutines can cause issues
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
