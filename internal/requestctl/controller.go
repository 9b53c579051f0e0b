package requestctl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// RateLimitConfig mirrors the window/threshold knobs spec.md §4.2 and
// §6 describe for the rate-limit gate.
type RateLimitConfig struct {
	PendingRequestsAmount      int
	AppTimeScale               time.Duration
	AppTimeScaleMaxRequests    int
	AppHMILevelNoneTimeScale   time.Duration
	AppHMILevelNoneMaxRequests int
}

// Options configures a Controller.
type Options struct {
	ThreadPoolSize   int
	DefaultTimeoutMS uint32
	TickInterval     time.Duration
	RateLimit        RateLimitConfig
	Logger           zerolog.Logger
}

type job struct {
	info *RequestInfo
	ctx  context.Context
}

// Controller is the RequestController of spec.md §4.2: a bounded worker
// pool that runs tracked commands, a deadline timer that fires
// OnTimeOut for expired entries, and a four-step rate-limit gate. Its
// worker-pool shape is grounded on the transcription WorkerPool pattern
// (job channel + fixed goroutines + atomic counters).
type Controller struct {
	opts Options
	set  *InfoSet

	jobs   chan job
	wg     sync.WaitGroup
	cancel context.CancelFunc

	noneLevelApps map[appmodel.ConnectionKey]bool
	noneMu        sync.Mutex

	// lowVoltage is set by OnLowVoltage and cleared by OnWakeUp; workers
	// consult it before running a job's Init()/Run() so nothing executes
	// while low-voltage shutdown is in progress (request_controller.cc's
	// is_low_voltage_ guard).
	lowVoltage atomic.Bool

	completed atomicCounter
	failed    atomicCounter

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewController builds a Controller with its worker pool and deadline
// timer not yet started; call Start to begin processing.
func NewController(opts Options) *Controller {
	if opts.ThreadPoolSize <= 0 {
		opts.ThreadPoolSize = 2
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 500 * time.Millisecond
	}
	return &Controller{
		opts:          opts,
		set:           NewInfoSet(),
		jobs:          make(chan job, 256),
		noneLevelApps: map[appmodel.ConnectionKey]bool{},
		stopped:       make(chan struct{}),
	}
}

// Start launches the worker pool and the deadline timer goroutine.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for i := 0; i < c.opts.ThreadPoolSize; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	c.wg.Add(1)
	go c.deadlineLoop(ctx)
}

// Stop cancels the worker pool and deadline timer and waits for both to
// drain, matching the Batcher/WorkerPool Stop() convention in the
// ingest package.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		close(c.stopped)
	})
}

func (c *Controller) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-c.jobs:
			if !ok {
				return
			}
			c.runJob(j)
		}
	}
}

func (c *Controller) runJob(j job) {
	if c.lowVoltage.Load() {
		j.info.Request.CleanUp()
		c.set.Erase(j.info.AppID, j.info.CorrelationID)
		return
	}
	cmdCtx := j.ctx
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	if err := j.info.Request.Init(); err != nil {
		c.failed.inc()
		c.opts.Logger.Warn().Err(err).Msg("command init failed")
		c.set.Erase(j.info.AppID, j.info.CorrelationID)
		return
	}
	j.info.Request.Run(cmdCtx)
	c.completed.inc()
}

func (c *Controller) deadlineLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, ri := range c.set.PopExpired(now) {
				ri.Request.OnTimeOut()
				c.opts.Logger.Debug().
					Uint32("correlation_id", ri.CorrelationID).
					Str("type", ri.Type.String()).
					Msg("request timed out")
			}
		}
	}
}

// RateLimitReason reports why AddMobileRequest refused a request, or
// ReasonNone if it was accepted.
type RateLimitReason = collab.RateLimitReason

// AddMobileRequest implements the four-step gate from spec.md §4.2:
// pending-requests ceiling, app-wide time-scale, per-HMI-level
// time-scale (NONE only), then enqueue. appIsNoneLevel tells the gate
// whether appID is currently at HMILevel NONE for the per-level check.
func (c *Controller) AddMobileRequest(ctx context.Context, req collab.Command, appID appmodel.ConnectionKey, correlationID uint32, timeoutSec uint64, appIsNoneLevel bool) collab.RateLimitReason {
	now := time.Now()

	if c.opts.RateLimit.PendingRequestsAmount > 0 && c.set.Size() >= c.opts.RateLimit.PendingRequestsAmount {
		return collab.ReasonTooManyPendingRequests
	}

	if c.opts.RateLimit.AppTimeScale > 0 && c.opts.RateLimit.AppTimeScaleMaxRequests > 0 {
		windowStart := now.Add(-c.opts.RateLimit.AppTimeScale)
		if c.set.CountInWindow(appID, windowStart, now) >= c.opts.RateLimit.AppTimeScaleMaxRequests {
			return collab.ReasonTooManyRequests
		}
	}

	// NONE-level over-limit is treated as a refusal. The original C++
	// source's equivalent branch returns true (accept) after logging a
	// warning, which reads as a dead code path rather than an
	// intentional allowance; spec.md §9 calls this out as a redesign
	// target and this gate implements the corrected, refusing behavior.
	if appIsNoneLevel && c.opts.RateLimit.AppHMILevelNoneTimeScale > 0 && c.opts.RateLimit.AppHMILevelNoneMaxRequests > 0 {
		windowStart := now.Add(-c.opts.RateLimit.AppHMILevelNoneTimeScale)
		if c.set.CountInWindow(appID, windowStart, now) >= c.opts.RateLimit.AppHMILevelNoneMaxRequests {
			return collab.ReasonNoneHMILevelManyRequests
		}
	}

	timeout := timeoutSec
	if timeout == 0 {
		timeout = uint64(c.opts.DefaultTimeoutMS) / 1000
	}
	ri := newRequestInfo(req, MobileRequest, appID, correlationID, timeout, now)
	c.set.Add(ri)
	select {
	case c.jobs <- job{info: ri, ctx: ctx}:
	default:
		c.opts.Logger.Warn().Msg("request queue full, running inline")
		c.runJob(job{info: ri, ctx: ctx})
	}
	return collab.ReasonNone
}

// AddHMIRequest tracks a request the core itself issued to the HMI. HMI
// requests are not subject to the rate-limit gate (spec.md §4.2).
func (c *Controller) AddHMIRequest(ctx context.Context, req collab.Command, correlationID uint32, timeoutSec uint64) {
	now := time.Now()
	timeout := timeoutSec
	if timeout == 0 {
		timeout = uint64(c.opts.DefaultTimeoutMS) / 1000
	}
	ri := newRequestInfo(req, HMIRequest, 0, correlationID, timeout, now)
	c.set.Add(ri)
	select {
	case c.jobs <- job{info: ri, ctx: ctx}:
	default:
		c.runJob(job{info: ri, ctx: ctx})
	}
}

// TerminateMobileRequest cancels one tracked mobile request by identity,
// calling CleanUp on the underlying command.
func (c *Controller) TerminateMobileRequest(appID appmodel.ConnectionKey, correlationID uint32) bool {
	ri, ok := c.set.Find(appID, correlationID)
	if !ok || ri.Type != MobileRequest {
		return false
	}
	ri.Request.CleanUp()
	return c.set.Erase(appID, correlationID)
}

// DeliverHMIEvent routes an HMI-originated response or notification to
// the tracked command that issued the original request, matched by
// correlation id, and stops tracking it — the counterpart to
// TerminateHMIRequest for the success path rather than cancellation.
// Reports false if no matching HMI request is tracked (e.g. it already
// timed out).
func (c *Controller) DeliverHMIEvent(ev collab.Event) bool {
	ri, ok := c.set.Find(0, ev.CorrelationID)
	if !ok || ri.Type != HMIRequest {
		return false
	}
	ri.Request.OnEvent(ev)
	return c.set.Erase(0, ev.CorrelationID)
}

// TerminateHMIRequest cancels one tracked HMI request by correlation id.
func (c *Controller) TerminateHMIRequest(correlationID uint32) bool {
	ri, ok := c.set.Find(0, correlationID)
	if !ok || ri.Type != HMIRequest {
		return false
	}
	ri.Request.CleanUp()
	return c.set.Erase(0, correlationID)
}

// TerminateAppRequests removes every tracked request belonging to an
// application, e.g. on disconnect.
func (c *Controller) TerminateAppRequests(appID appmodel.ConnectionKey) int {
	return c.set.RemoveByConnectionKey(appID)
}

// TerminateAllHMI removes every tracked HMI-originated request.
func (c *Controller) TerminateAllHMI() int {
	return c.set.RemoveAllOfType(HMIRequest)
}

// TerminateAllMobile removes every tracked mobile-originated request.
func (c *Controller) TerminateAllMobile() int {
	return c.set.RemoveAllOfType(MobileRequest)
}

// UpdateRequestTimeout extends or shortens an in-flight request's
// deadline, recomputed from its original start time.
func (c *Controller) UpdateRequestTimeout(appID appmodel.ConnectionKey, correlationID uint32, newTimeoutSec uint64) bool {
	ri, ok := c.set.Find(appID, correlationID)
	if !ok {
		return false
	}
	ri.UpdateTimeout(newTimeoutSec)
	return true
}

// OnLowVoltage asserts the low-voltage flag so the worker pool stops
// executing tracked requests. It does not itself terminate anything —
// request_controller.cc's OnLowVoltage only flips is_low_voltage_;
// the actual purge happens on OnWakeUp.
func (c *Controller) OnLowVoltage() {
	c.lowVoltage.Store(true)
}

// OnWakeUp clears the low-voltage flag and discards every request that
// was tracked through the low-voltage period, HMI and mobile alike,
// since none of them can have made progress while suspended.
func (c *Controller) OnWakeUp() {
	c.lowVoltage.Store(false)
	c.TerminateAllHMI()
	c.TerminateAllMobile()
}

// Size reports the number of currently tracked requests, mainly for
// metrics and tests.
func (c *Controller) Size() int { return c.set.Size() }

// Stats reports completed/failed counters, mirroring the
// transcription WorkerPool's Stats() shape.
type Stats struct {
	Completed uint64
	Failed    uint64
	Tracked   int
}

func (c *Controller) Stats() Stats {
	return Stats{
		Completed: c.completed.get(),
		Failed:    c.failed.get(),
		Tracked:   c.set.Size(),
	}
}
