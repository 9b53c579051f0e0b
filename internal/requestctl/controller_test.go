package requestctl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

type syncCommand struct {
	mu  sync.Mutex
	ran bool
	wg  *sync.WaitGroup
}

func (c *syncCommand) Init() error { return nil }
func (c *syncCommand) Run(ctx context.Context) {
	c.mu.Lock()
	c.ran = true
	c.mu.Unlock()
	if c.wg != nil {
		c.wg.Done()
	}
}
func (c *syncCommand) OnEvent(ev collab.Event)  {}
func (c *syncCommand) OnTimeOut()               {}
func (c *syncCommand) CleanUp()                 {}
func (c *syncCommand) DefaultTimeoutMS() uint32 { return 1000 }
func (c *syncCommand) CheckPermissions() error  { return nil }

func (c *syncCommand) didRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ran
}

func newTestController(rl RateLimitConfig) *Controller {
	return NewController(Options{
		ThreadPoolSize:   2,
		DefaultTimeoutMS: 1000,
		TickInterval:     20 * time.Millisecond,
		RateLimit:        rl,
		Logger:           zerolog.Nop(),
	})
}

func TestController_AddMobileRequestRunsCommand(t *testing.T) {
	c := newTestController(RateLimitConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	defer c.Stop()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	cmd := &syncCommand{wg: &wg}

	reason := c.AddMobileRequest(context.Background(), cmd, appmodel.ConnectionKey(1), 1, 10, false)
	if reason != collab.ReasonNone {
		t.Fatalf("AddMobileRequest reason = %v, want ReasonNone", reason)
	}

	wg.Wait()
	if !cmd.didRun() {
		t.Error("command never ran")
	}
}

func TestController_PendingRequestsCeiling(t *testing.T) {
	c := newTestController(RateLimitConfig{PendingRequestsAmount: 1})

	blocker := &blockingCommand{release: make(chan struct{})}
	defer close(blocker.release)

	reason := c.AddMobileRequest(context.Background(), blocker, appmodel.ConnectionKey(1), 1, 10, false)
	if reason != collab.ReasonNone {
		t.Fatalf("first request reason = %v, want ReasonNone", reason)
	}

	reason = c.AddMobileRequest(context.Background(), &syncCommand{}, appmodel.ConnectionKey(1), 2, 10, false)
	if reason != collab.ReasonTooManyPendingRequests {
		t.Errorf("second request reason = %v, want ReasonTooManyPendingRequests", reason)
	}
}

func TestController_AppTimeScaleGate(t *testing.T) {
	c := newTestController(RateLimitConfig{
		AppTimeScale:            time.Minute,
		AppTimeScaleMaxRequests: 1,
	})

	c.AddMobileRequest(context.Background(), &syncCommand{}, appmodel.ConnectionKey(1), 1, 10, false)
	reason := c.AddMobileRequest(context.Background(), &syncCommand{}, appmodel.ConnectionKey(1), 2, 10, false)
	if reason != collab.ReasonTooManyRequests {
		t.Errorf("reason = %v, want ReasonTooManyRequests", reason)
	}
}

func TestController_NoneHMILevelGateRefuses(t *testing.T) {
	c := newTestController(RateLimitConfig{
		AppHMILevelNoneTimeScale:   time.Minute,
		AppHMILevelNoneMaxRequests: 1,
	})

	c.AddMobileRequest(context.Background(), &syncCommand{}, appmodel.ConnectionKey(1), 1, 10, true)
	reason := c.AddMobileRequest(context.Background(), &syncCommand{}, appmodel.ConnectionKey(1), 2, 10, true)
	if reason != collab.ReasonNoneHMILevelManyRequests {
		t.Errorf("reason = %v, want ReasonNoneHMILevelManyRequests", reason)
	}

	// A non-NONE-level app is unaffected by the per-level gate even
	// after exhausting it for the NONE-level app above.
	reason = c.AddMobileRequest(context.Background(), &syncCommand{}, appmodel.ConnectionKey(2), 3, 10, false)
	if reason != collab.ReasonNone {
		t.Errorf("non-NONE app reason = %v, want ReasonNone", reason)
	}
}

func TestController_DeadlineTimerFiresOnTimeOut(t *testing.T) {
	c := newTestController(RateLimitConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	defer c.Stop()
	defer cancel()

	cmd := &timeoutCommand{fired: make(chan struct{})}
	c.AddMobileRequest(ctx, cmd, appmodel.ConnectionKey(1), 1, 0, false)
	// timeoutSec=0 would normally mean "never expires" at the
	// RequestInfo level, but AddMobileRequest substitutes the default
	// timeout when the caller passes 0; override it directly to
	// exercise the deadline path deterministically.
	c.UpdateRequestTimeout(appmodel.ConnectionKey(1), 1, 1)

	select {
	case <-cmd.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("OnTimeOut was never called")
	}
}

func TestController_TerminateAppRequests(t *testing.T) {
	c := newTestController(RateLimitConfig{PendingRequestsAmount: 0})

	blocker := &blockingCommand{release: make(chan struct{})}
	defer close(blocker.release)
	c.AddMobileRequest(context.Background(), blocker, appmodel.ConnectionKey(1), 1, 10, false)
	c.AddHMIRequest(context.Background(), &blockingCommand{release: make(chan struct{}, 1)}, 2, 10)

	removed := c.TerminateAppRequests(appmodel.ConnectionKey(1))
	if removed != 1 {
		t.Errorf("TerminateAppRequests removed %d, want 1", removed)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1 (HMI request should remain)", c.Size())
	}
}

type blockingCommand struct {
	release chan struct{}
}

func (c *blockingCommand) Init() error { return nil }
func (c *blockingCommand) Run(ctx context.Context) {
	<-c.release
}
func (c *blockingCommand) OnEvent(ev collab.Event)  {}
func (c *blockingCommand) OnTimeOut()               {}
func (c *blockingCommand) CleanUp()                 {}
func (c *blockingCommand) DefaultTimeoutMS() uint32 { return 1000 }
func (c *blockingCommand) CheckPermissions() error  { return nil }

type timeoutCommand struct {
	fired chan struct{}
}

func (c *timeoutCommand) Init() error               { return nil }
func (c *timeoutCommand) Run(ctx context.Context)   { <-ctx.Done() }
func (c *timeoutCommand) OnEvent(ev collab.Event)   {}
func (c *timeoutCommand) OnTimeOut()                { close(c.fired) }
func (c *timeoutCommand) CleanUp()                  {}
func (c *timeoutCommand) DefaultTimeoutMS() uint32  { return 1000 }
func (c *timeoutCommand) CheckPermissions() error   { return nil }
