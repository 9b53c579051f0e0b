package simulator

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// Options configures a Harness. Manager is deliberately absent here:
// appmgr.New itself needs a collab.MessageRouter at construction time,
// so the real wiring order is New (builds Router) -> appmgr.New(...,
// harness.Router, ...) -> harness.SetManager(mgr) -> harness.Start.
type Options struct {
	BrokerAddr    string
	MobileFactory collab.MobileCommandFactory
	HMIFactory    collab.HMICommandFactory
	Log           zerolog.Logger
}

// Harness is the demo/integration-test message-router implementation
// described in SPEC_FULL's DOMAIN STACK: it owns an embedded broker, a
// Router for outbound traffic (handed to appmgr.New as the
// collab.MessageRouter), and a subscriber loop that decodes inbound
// mobile/HMI envelopes and drives the core through Manager exactly the
// way a real transport adapter would, minus the real transport.
type Harness struct {
	Broker *Broker
	Router *Router

	sub mqtt.Client
	mgr *appmgr.Manager

	mobileFactory collab.MobileCommandFactory
	hmiFactory    collab.HMICommandFactory

	log zerolog.Logger
}

// New starts an embedded broker at opts.BrokerAddr, connects Router to
// it, and returns a Harness ready to Start subscribing. The Router is
// exposed on the returned Harness so the caller can pass it to
// appmgr.New before calling Start.
func New(opts Options) (*Harness, error) {
	broker, err := NewBroker(opts.BrokerAddr, opts.Log)
	if err != nil {
		return nil, err
	}
	broker.Start()

	router, err := NewRouter(RouterOptions{
		BrokerAddr: brokerURL(opts.BrokerAddr),
		ClientID:   "sdl-core-router",
		Log:        opts.Log,
	})
	if err != nil {
		broker.Close()
		return nil, err
	}

	return &Harness{
		Broker:        broker,
		Router:        router,
		mobileFactory: opts.MobileFactory,
		hmiFactory:    opts.HMIFactory,
		log:           opts.Log,
	}, nil
}

// SetManager attaches the Application Manager the harness dispatches
// decoded mobile/HMI messages into. Must be called before Start.
func (h *Harness) SetManager(mgr *appmgr.Manager) {
	h.mgr = mgr
}

// SetMobileFactory attaches the factory used to turn a decoded mobile
// message into a collab.Command. Exists as a setter, not only an
// Options field, because EchoMobileFactory needs h.Router, which only
// exists once New has already returned.
func (h *Harness) SetMobileFactory(f collab.MobileCommandFactory) {
	h.mobileFactory = f
}

// SetHMIFactory attaches the factory used for HMI-initiated messages.
func (h *Harness) SetHMIFactory(f collab.HMICommandFactory) {
	h.hmiFactory = f
}

// Start connects the subscriber client and subscribes to the mobile
// request wildcard and HMI response topics, dispatching every decoded
// message into Manager. Call after Manager's Router field has been set
// to h.Router (appmgr.New takes the router at construction time).
func (h *Harness) Start(ctx context.Context) error {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(brokerURL(h.Broker.addr())).
		SetClientID("sdl-core-subscriber").
		SetAutoReconnect(true).
		SetOrderMatters(false)

	h.sub = mqtt.NewClient(clientOpts)
	token := h.sub.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	if token := h.sub.Subscribe(mobileRequestWildcard(), 0, h.onMobileMessage(ctx)); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.sub.Subscribe(topicHMIResponse, 0, h.onHMIMessage(ctx)); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Stop disconnects the subscriber, the router, and closes the broker.
func (h *Harness) Stop() {
	if h.sub != nil {
		h.sub.Disconnect(250)
	}
	h.Router.Close()
	if err := h.Broker.Close(); err != nil {
		h.log.Warn().Err(err).Msg("embedded mqtt broker close failed")
	}
}

func (h *Harness) onMobileMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		connKey, ok := connKeyFromTopic(msg.Topic())
		if !ok {
			h.log.Warn().Str("topic", msg.Topic()).Msg("mobile request on malformed topic, dropping")
			return
		}
		decoded, err := decodeMobileEnvelope(connKey, msg.Payload())
		if err != nil {
			h.log.Warn().Err(err).Msg("discarding malformed mobile envelope")
			return
		}
		app, found := h.mgr.ApplicationByConnectionKey(connKey)
		if !found {
			h.log.Warn().Uint32("connection_key", uint32(connKey)).Msg("mobile request for unregistered application, dropping")
			return
		}
		cmd, err := h.mobileFactory.CreateCommand(decoded)
		if err != nil {
			h.log.Warn().Err(err).Msg("mobile command factory refused message")
			return
		}
		if refusal := h.mgr.DispatchMobileRequest(ctx, app, cmd, decoded.CorrelationID, 0); refusal != nil {
			h.log.Info().Err(refusal).Uint32("correlation_id", decoded.CorrelationID).Msg("mobile request refused")
		}
	}
}

// onHMIMessage handles topicHMIResponse traffic two ways: if the
// correlation id matches a request the core itself issued, it's a
// response delivered via DeliverHMIEvent; otherwise it's treated as an
// HMI-initiated notification (e.g. a button press) and handed to the
// HMI command factory for its own dispatch, mirroring how the mobile
// side's unsolicited requests are handled in onMobileMessage.
func (h *Harness) onHMIMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		decoded, err := decodeHMIEnvelope(msg.Payload())
		if err != nil {
			h.log.Warn().Err(err).Msg("discarding malformed hmi envelope")
			return
		}
		ev := collab.Event{
			FunctionID:    decoded.FunctionID,
			CorrelationID: decoded.CorrelationID,
			Payload:       decoded.Params,
		}
		if h.mgr.RequestCtl.DeliverHMIEvent(ev) {
			return
		}
		if h.hmiFactory == nil {
			h.log.Debug().Uint32("correlation_id", decoded.CorrelationID).Msg("hmi event for untracked or expired request")
			return
		}
		cmd, err := h.hmiFactory.CreateCommand(decoded)
		if err != nil {
			h.log.Warn().Err(err).Msg("hmi command factory refused message")
			return
		}
		h.mgr.DispatchHMIRequest(ctx, cmd, decoded.CorrelationID, 0)
	}
}

func connKeyFromTopic(topic string) (appmodel.ConnectionKey, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "sdl" || parts[1] != "mobile" || parts[3] != "request" {
		return 0, false
	}
	var n uint32
	if _, err := parseUint32(parts[2], &n); err != nil {
		return 0, false
	}
	return appmodel.ConnectionKey(n), true
}
