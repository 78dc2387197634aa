package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linkup-social/flowkit/internal/logger"
	"github.com/linkup-social/flowkit/pkg/api"
)

// Config tunes a Pool. Zero values fall back to the defaults below.
type Config struct {
	// Concurrency is the number of sweep loops to run. Each loop has its
	// own lease owner identity, so loops never step on each other's runs.
	Concurrency int

	// PollInterval is how long a loop waits between sweeps when the last
	// sweep advanced nothing. A sweep that made progress polls again
	// immediately.
	PollInterval time.Duration

	// Retention is how long terminal runs are kept before the purge loop
	// removes them. Zero disables purging.
	Retention time.Duration

	// PurgeInterval is how often the purge loop fires.
	PurgeInterval time.Duration
}

const (
	defaultConcurrency   = 2
	defaultPollInterval  = time.Second
	defaultPurgeInterval = time.Hour
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = defaultPurgeInterval
	}
	return c
}

// Pool runs sweep loops against an Engine. Each loop polls for due runs,
// leases them, and advances them; the store's lease CAS is the only
// coordination between loops, so pools in separate processes cooperate the
// same way goroutines in one process do.
type Pool struct {
	engine api.Engine
	config Config

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewPool creates a Pool over the given engine.
func NewPool(engine api.Engine, config Config) *Pool {
	return &Pool{
		engine: engine,
		config: config.withDefaults(),
	}
}

// Start launches the sweep loops and, when retention is configured, the
// purge loop. It returns an error if the pool is already running.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("worker: pool already started")
	}
	p.stop = make(chan struct{})
	p.running = true

	host, _ := os.Hostname()
	for i := 0; i < p.config.Concurrency; i++ {
		owner := fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
		p.wg.Add(1)
		go p.sweepLoop(owner)
	}

	if p.config.Retention > 0 {
		p.wg.Add(1)
		go p.purgeLoop()
	}

	logger.Info("worker pool started",
		zap.Int("concurrency", p.config.Concurrency),
		zap.Duration("pollInterval", p.config.PollInterval))
	return nil
}

// Stop signals every loop to exit and waits for them.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stop := p.stop
	p.running = false
	p.mu.Unlock()

	close(stop)
	p.wg.Wait()
	logger.Info("worker pool stopped")
}

func (p *Pool) sweepLoop(owner string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			logger.Debug("sweep loop stopping", zap.String("owner", owner))
			return
		case <-ticker.C:
		}

		// Drain: keep sweeping while runs are due so a backlog clears at
		// full speed instead of one batch per tick.
		for {
			advanced, err := p.engine.Sweep(context.Background(), owner)
			if err != nil {
				logger.Error("sweep failed", zap.String("owner", owner), zap.Error(err))
				break
			}
			if advanced == 0 {
				break
			}
			select {
			case <-p.stop:
				return
			default:
			}
		}
	}
}

func (p *Pool) purgeLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-p.config.Retention)
		purged, err := p.engine.PurgeTerminal(context.Background(), cutoff)
		if err != nil {
			logger.Error("retention purge failed", zap.Error(err))
			continue
		}
		if purged > 0 {
			logger.Info("purged terminal runs", zap.Int("count", purged))
		}
	}
}
