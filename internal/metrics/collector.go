package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/logging"
)

// Collector periodically refreshes process gauges.
type Collector struct {
	logger   *logging.Logger
	interval time.Duration
	started  time.Time
	clock    clock.Clock

	mu         sync.RWMutex
	lastUpdate time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewCollector creates a collector that refreshes every interval.
func NewCollector(logger *logging.Logger, interval time.Duration, c clock.Clock) *Collector {
	if c == nil {
		c = &clock.RealClock{}
	}
	return &Collector{
		logger:   logger.WithComponent("metrics"),
		interval: interval,
		clock:    c,
		started:  c.Now(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins collection in the background.
func (c *Collector) Start() {
	c.collect()
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
	c.logger.Debug("metrics collector started", "interval", c.interval)
}

// Stop halts collection. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	now := c.clock.Now()
	r := Get()
	r.Uptime.Set(now.Sub(c.started).Seconds())
	r.Goroutines.Set(float64(runtime.NumGoroutine()))

	c.mu.Lock()
	c.lastUpdate = now
	c.mu.Unlock()
}

// GetLastUpdate returns the time of the last collection.
func (c *Collector) GetLastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
