package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tetsuo-ai/AgenC-sub003/infrastructure/ratelimit"
	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// TaskLister fetches the currently claimable tasks from the ledger. Backed
// in production by *ledger.Operations.FetchClaimableTasks.
type TaskLister interface {
	FetchClaimableTasks(ctx context.Context) ([]task.Task, error)
}

// Poller runs TaskLister.FetchClaimableTasks on a cron schedule, parsed with
// the "@every" shorthand so callers can configure it with a plain interval.
type Poller struct {
	lister   TaskLister
	interval time.Duration
	logger   *logrus.Entry

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool

	limiter ratelimit.Waiter
	onBatch func([]task.Task)
	onError func(error)
}

// NewPoller constructs a Poller. onBatch receives every poll's raw results
// (filtering and seen-set deduplication happen inside onBatch);
// onError receives poll failures for failure counting. A nil limiter
// disables poll throttling.
func NewPoller(lister TaskLister, interval time.Duration, logger *logrus.Entry, limiter ratelimit.Waiter, onBatch func([]task.Task), onError func(error)) *Poller {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	return &Poller{
		lister:   lister,
		interval: interval,
		logger:   logger.WithField("component", "discovery.poller"),
		limiter:  limiter,
		onBatch:  onBatch,
		onError:  onError,
	}
}

// Start begins the periodic polling loop. Idempotent: calling Start while
// already running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	c := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %s", p.interval)
	id, err := c.AddFunc(spec, func() { p.poll(ctx) })
	if err != nil {
		p.logger.WithError(err).Error("failed to schedule poll cron entry")
		return
	}
	c.Start()

	p.cron = c
	p.entryID = id
	p.running = true
}

// Stop drains the timer and stops the schedule.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.running = false
}

// Poll performs one manual poll cycle outside the schedule and returns every
// task the lister reported, along with any error. The returned slice is not
// filtered or checked against the seen-set; only onBatch does that. Blocks
// on the poll throttle before fetching.
func (p *Poller) Poll(ctx context.Context) ([]task.Task, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tasks, err := p.lister.FetchClaimableTasks(ctx)
	if err != nil {
		if p.onError != nil {
			p.onError(err)
		}
		return nil, err
	}
	if p.onBatch != nil {
		p.onBatch(tasks)
	}
	return tasks, nil
}

func (p *Poller) poll(ctx context.Context) {
	if _, err := p.Poll(ctx); err != nil {
		p.logger.WithError(err).Warn("poll cycle failed")
	}
}

// Running reports whether the poller's schedule is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
