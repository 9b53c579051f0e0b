package simulator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// EchoCommand is a minimal collab.Command used when no real mobile/HMI
// command factory is wired in: it acknowledges the request back over
// the same transport it arrived on. Production deployments supply a
// real collab.MobileCommandFactory/HMICommandFactory implementing
// actual RPC semantics; this exists so cmd/sdl-core-sim and cmd/sdl-core
// are runnable end to end without one, per spec.md's Non-goals keeping
// command bodies out of core scope.
type EchoCommand struct {
	msg    collab.MobileMessage
	router *Router
	log    zerolog.Logger
}

// NewEchoCommand builds an EchoCommand for a decoded mobile message.
func NewEchoCommand(msg collab.MobileMessage, router *Router, log zerolog.Logger) *EchoCommand {
	return &EchoCommand{msg: msg, router: router, log: log}
}

func (c *EchoCommand) Init() error             { return nil }
func (c *EchoCommand) OnTimeOut()              {}
func (c *EchoCommand) CleanUp()                {}
func (c *EchoCommand) DefaultTimeoutMS() uint32 { return 10000 }
func (c *EchoCommand) CheckPermissions() error  { return nil }

func (c *EchoCommand) OnEvent(ev collab.Event) {
	c.log.Debug().Int32("function_id", ev.FunctionID).Msg("echo command received hmi event")
}

// Run acknowledges the request by publishing a success response back on
// the originating application's notification topic.
func (c *EchoCommand) Run(ctx context.Context) {
	_ = ctx
	if err := c.router.ManageMobileCommand(c); err != nil {
		c.log.Warn().Err(err).Msg("echo command failed to publish acknowledgement")
	}
}

// MobileEnvelope implements MobilePublisher.
func (c *EchoCommand) MobileEnvelope() (appmodel.ConnectionKey, string, map[string]any) {
	return c.msg.ConnectionKey, "", map[string]any{
		"function_id":    c.msg.FunctionID,
		"correlation_id": c.msg.CorrelationID,
		"success":        true,
		"result_code":    "SUCCESS",
	}
}

// EchoMobileFactory builds EchoCommand for every decoded mobile message.
type EchoMobileFactory struct {
	Router *Router
	Log    zerolog.Logger
}

func (f *EchoMobileFactory) CreateCommand(msg collab.MobileMessage) (collab.Command, error) {
	return NewEchoCommand(msg, f.Router, f.Log), nil
}
