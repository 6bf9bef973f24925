package pipeline

import (
	"fmt"
	"sync"
	"time"

	"leafscan/logging"
)

// ingestResult carries one image's outcome to the tracker.
type ingestResult struct {
	path     string
	category string
	err      error
}

// progressTracker consumes ingest results, keeps the running counts and
// repaints a single progress line on a fixed cadence.
type progressTracker struct {
	mu        sync.Mutex
	ticker    *time.Ticker
	done      chan bool
	drained   chan struct{}
	total     int
	processed int
	errors    int
	stats     map[string]*CategoryStats
}

// newProgressTracker starts the display and result-consumer goroutines.
func newProgressTracker(total int, period time.Duration, results chan ingestResult, stats map[string]*CategoryStats) *progressTracker {
	if period <= 0 {
		period = 500 * time.Millisecond
	}
	tracker := &progressTracker{
		ticker:  time.NewTicker(period),
		done:    make(chan bool),
		drained: make(chan struct{}),
		total:   total,
		stats:   stats,
	}

	go tracker.displayProgress()
	go tracker.processResults(results)

	return tracker
}

// displayProgress shows the progress periodically
func (p *progressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if p.errors > 0 {
				fmt.Printf("\rProgress: %d/%d (Errors: %d)", p.processed, p.total, p.errors)
			} else {
				fmt.Printf("\rProgress: %d/%d", p.processed, p.total)
			}
			p.mu.Unlock()
		}
	}
}

// processResults updates the tracker state from processing results.
func (p *progressTracker) processResults(results chan ingestResult) {
	for result := range results {
		p.mu.Lock()
		p.processed++
		st := p.stats[result.category]
		if result.err != nil {
			p.errors++
			if st != nil {
				st.Failed++
			}
			logging.ImageProcessed(result.path, false, result.err.Error())
		} else {
			if st != nil {
				st.Processed++
			}
			logging.ImageProcessed(result.path, true, "")
		}
		p.mu.Unlock()
	}
	close(p.drained)
}

// stop waits for the results channel to drain, ends the display and
// prints the final counts. The caller must close the results channel
// first.
func (p *progressTracker) stop() {
	<-p.drained
	p.ticker.Stop()
	p.done <- true

	p.mu.Lock()
	fmt.Printf("\rProgress: %d/%d (Errors: %d)\n", p.processed, p.total, p.errors)
	p.mu.Unlock()
}
