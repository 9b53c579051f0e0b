package simulator

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// AppStore is the minimal view of the live application set a Router
// needs to resolve a NAVI_STREAMING overlay's attenuation against
// every other registered application; statectl.AppStore and
// appmgr.Manager both already satisfy it.
type AppStore interface {
	Apps() []*appmodel.Application
}

// MobilePublisher is an optional interface a collab.Command
// implementation can satisfy to hand the router something to actually
// transmit; Router.ManageMobileCommand type-asserts for it rather than
// assuming every Command carries a payload, since the command factory
// producing real RPC responses is out of core scope (spec.md §1/§6).
type MobilePublisher interface {
	MobileEnvelope() (connKey appmodel.ConnectionKey, topic string, payload map[string]any)
}

// HMIPublisher is MobilePublisher's HMI-directed counterpart.
type HMIPublisher interface {
	HMIEnvelope() (topic string, payload map[string]any)
}

// RouterOptions configures a Router.
type RouterOptions struct {
	BrokerAddr string
	ClientID   string
	Log        zerolog.Logger
}

// Router implements collab.MessageRouter over the embedded broker,
// grounded on the teacher's mqttclient.Client connection-lifecycle
// conventions (auto-reconnect, ordered-delivery-not-required) but
// running as a publisher rather than a subscriber-only ingest client.
type Router struct {
	client mqtt.Client
	log    zerolog.Logger

	mu        sync.Mutex
	handleMAC map[string]string

	apps AppStore
}

// NewRouter connects to the broker at opts.BrokerAddr and returns a
// ready Router. Call Close when done.
func NewRouter(opts RouterOptions) (*Router, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "sdl-core-router"
	}
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerAddr).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false)

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect router to broker: %w", err)
	}

	return &Router{client: client, log: opts.Log, handleMAC: map[string]string{}}, nil
}

// SetAppStore attaches the application set used to resolve
// NAVI_STREAMING conflicts. Like Harness.SetManager, this exists as a
// setter because the app store (appmgr.Manager) needs this Router at
// construction time, so it can only be wired in after the fact.
func (r *Router) SetAppStore(apps AppStore) {
	r.mu.Lock()
	r.apps = apps
	r.mu.Unlock()
}

// RegisterDeviceHandle records the MAC address a device handle resolves
// to, the way a real transport adapter learns it during the mobile
// side's initial connection handshake. Test and demo callers populate
// this directly since the simulator never performs a real handshake.
func (r *Router) RegisterDeviceHandle(handle, mac string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handleMAC[handle] = mac
}

// GetDeviceMacAddressForHandle implements collab.MessageRouter.
func (r *Router) GetDeviceMacAddressForHandle(handle string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mac, ok := r.handleMAC[handle]
	if !ok {
		return "", fmt.Errorf("no device registered for handle %q", handle)
	}
	return mac, nil
}

// ManageMobileCommand implements collab.MessageRouter by publishing
// whatever cmd is willing to expose through MobilePublisher. A Command
// that doesn't implement it (most of them, since command bodies are out
// of core scope) is a no-op here, not an error — the contract only
// promises delivery is attempted, not that every Command carries a
// wire payload.
func (r *Router) ManageMobileCommand(cmd collab.Command) error {
	pub, ok := cmd.(MobilePublisher)
	if !ok {
		return nil
	}
	connKey, topic, payload := pub.MobileEnvelope()
	if topic == "" {
		topic = mobileNotificationTopic(connKey)
	}
	return r.publishJSON(topic, payload)
}

// ManageHMICommand implements collab.MessageRouter, publishing to the
// shared HMI request topic.
func (r *Router) ManageHMICommand(cmd collab.Command) error {
	pub, ok := cmd.(HMIPublisher)
	if !ok {
		return nil
	}
	topic, payload := pub.HMIEnvelope()
	if topic == "" {
		topic = topicHMIRequest
	}
	return r.publishJSON(topic, payload)
}

// SendHMIStatusNotification implements collab.MessageRouter, broadcasting
// the application's current effective HMI status on a well-known topic
// any observer (the admin websocket stream, an integration test) can
// subscribe to.
func (r *Router) SendHMIStatusNotification(app *appmodel.Application) {
	top := app.Stack.Top()
	level := top.EffectiveHMILevel(app.IsAudioApp(), false)
	r.mu.Lock()
	apps := r.apps
	r.mu.Unlock()
	var conflict bool
	if apps != nil && app.Stack.HasOverlay(appmodel.StateNaviStreaming) {
		conflict = appmodel.NaviStreamingConflict(apps.Apps(), app, false)
	}
	payload, err := encodeHMIStatus(app, level, conflict)
	if err != nil {
		r.log.Warn().Err(err).Str("policy_app_id", app.PolicyAppID).Msg("encode hmi status notification failed")
		return
	}
	token := r.client.Publish(topicHMIStatus, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		r.log.Warn().Err(err).Msg("publish hmi status notification failed")
	}
}

func (r *Router) publishJSON(topic string, payload map[string]any) error {
	env := hmiEnvelope{Params: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbound envelope: %w", err)
	}
	token := r.client.Publish(topic, 0, false, data)
	token.Wait()
	return token.Error()
}

// Close disconnects the router's client.
func (r *Router) Close() {
	r.client.Disconnect(250)
}
