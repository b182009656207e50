package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/ratelimit"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// backoffThreshold and backoffDuration: five consecutive poll failures pause
// discovery for 60s. The poll schedule keeps running during the pause;
// results from both the poller and the event subscription are dropped until
// the timer resumes discovery, and each further poll failure while paused
// restarts the 60s timer.
const (
	backoffThreshold = 5
	backoffDuration   = 60 * time.Second
)

// Config configures a Coordinator.
type Config struct {
	PollInterval time.Duration
	EventURL     string // empty disables the event-subscription source
	Filter       Filter
	Logger       *logrus.Entry

	// PollRateLimit bounds how often the poller may call FetchClaimableTasks,
	// independent of PollInterval (useful when Poll is also invoked
	// manually). The zero value disables throttling.
	PollRateLimit ratelimit.Config
}

// Coordinator fuses the polling and event-subscription sources behind a
// single seen-set, filter, and pause/resume gate.
type Coordinator struct {
	cfg    Config
	seen   *seenSet
	logger *logrus.Entry

	poller     *Poller
	subscriber *EventSubscriber

	paused        int32
	consecutiveFailures int32

	onDiscovered func(task.Task)

	mu           sync.Mutex
	pauseTimer   *time.Timer
}

// New constructs a Coordinator. onDiscovered is invoked once per newly
// observed, filter-accepted task, from whichever source sees it first.
func New(cfg Config, lister TaskLister, onDiscovered func(task.Task)) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "discovery.coordinator")

	c := &Coordinator{
		cfg:          cfg,
		seen:         newSeenSet(),
		logger:       logger,
		onDiscovered: onDiscovered,
	}

	var limiter ratelimit.Waiter = ratelimit.Unlimited()
	if cfg.PollRateLimit.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.PollRateLimit)
	}
	c.poller = NewPoller(lister, cfg.PollInterval, logger, limiter, c.handleBatch, c.handlePollError)
	if cfg.EventURL != "" {
		c.subscriber = NewEventSubscriber(cfg.EventURL, logger, c.handleOne, c.handleEventError)
	}
	return c
}

// Start begins both discovery sources. Idempotent at the source level.
func (c *Coordinator) Start(ctx context.Context) {
	c.poller.Start(ctx)
	if c.subscriber != nil {
		c.subscriber.Start(ctx)
	}
}

// Stop drains both sources.
func (c *Coordinator) Stop() {
	c.poller.Stop()
	if c.subscriber != nil {
		c.subscriber.Stop()
	}
	c.mu.Lock()
	if c.pauseTimer != nil {
		c.pauseTimer.Stop()
	}
	c.mu.Unlock()
}

// Poll performs one manual polling cycle, bypassing the schedule.
func (c *Coordinator) Poll(ctx context.Context) ([]task.Task, error) {
	return c.poller.Poll(ctx)
}

// Pause suppresses discovery emission without tearing down the underlying
// sources.
func (c *Coordinator) Pause() {
	atomic.StoreInt32(&c.paused, 1)
}

// Resume re-enables discovery emission.
func (c *Coordinator) Resume() {
	atomic.StoreInt32(&c.paused, 0)
	atomic.StoreInt32(&c.consecutiveFailures, 0)
}

// Paused reports whether discovery emission is currently suppressed.
func (c *Coordinator) Paused() bool {
	return atomic.LoadInt32(&c.paused) == 1
}

func (c *Coordinator) handleBatch(tasks []task.Task) {
	atomic.StoreInt32(&c.consecutiveFailures, 0)
	for _, t := range tasks {
		c.handleOne(t)
	}
}

func (c *Coordinator) handleOne(t task.Task) {
	if c.Paused() {
		return
	}
	if !c.cfg.Filter.Accepts(t) {
		return
	}
	if !c.seen.MarkIfNew(t.Ref.Address) {
		return
	}
	if c.onDiscovered != nil {
		c.onDiscovered(t)
	}
}

func (c *Coordinator) handlePollError(err error) {
	failures := atomic.AddInt32(&c.consecutiveFailures, 1)
	c.logger.WithError(err).WithField("consecutive_failures", failures).Warn("poll failed")
	if int(failures) >= backoffThreshold {
		c.enterBackoff()
	}
}

func (c *Coordinator) handleEventError(err error) {
	c.logger.WithError(err).Warn("event subscription error")
}

// enterBackoff pauses discovery for backoffDuration, then resumes and
// resets the failure counter.
func (c *Coordinator) enterBackoff() {
	c.Pause()
	c.logger.WithField("backoff", backoffDuration).Warn("pausing discovery after repeated poll failures")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pauseTimer != nil {
		c.pauseTimer.Stop()
	}
	c.pauseTimer = time.AfterFunc(backoffDuration, func() {
		c.logger.Info("resuming discovery after backoff")
		c.Resume()
	})
}

// SeenCount reports how many distinct tasks have been observed.
func (c *Coordinator) SeenCount() int {
	return c.seen.Len()
}
