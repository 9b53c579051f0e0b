package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// Event is a single admin-surface notification pushed over /events: an
// HMI-status change or state-stack transition, the same moments that
// trigger collab.MessageRouter.SendHMIStatusNotification for the real
// mobile/HMI transport.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type hmiStatusPayload struct {
	PolicyAppID   string `json:"policy_app_id"`
	HMIAppID      uint32 `json:"hmi_app_id"`
	HMILevel      string `json:"hmi_level"`
	AudioState    string `json:"audio_streaming_state"`
	SystemContext string `json:"system_context"`
}

// Hub fans admin-surface events out to every connected websocket client.
// Slow or stuck clients never block a broadcaster: each client has its
// own bounded outbound queue and is dropped if it falls behind.
type Hub struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}

	upgrader websocket.Upgrader
}

type hubClient struct {
	conn *websocket.Conn
	out  chan Event
}

// NewHub builds an empty Hub. Origin checking is delegated to the admin
// surface's existing CORS middleware rather than duplicated here, so the
// upgrader accepts any origin.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and streams Events to it
// until the client disconnects or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("events websocket upgrade failed")
		return
	}

	client := &hubClient{conn: conn, out: make(chan Event, 32)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop's sole job is to notice when the client goes away; the
// admin event stream is one-directional, so any inbound frame is
// discarded.
func (h *Hub) readLoop(client *hubClient) {
	defer h.remove(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	defer client.conn.Close()
	for ev := range client.out {
		client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.conn.WriteJSON(ev); err != nil {
			h.remove(client)
			return
		}
	}
}

func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.out)
	}
	h.mu.Unlock()
}

// Broadcast delivers ev to every connected client, dropping it for any
// client whose outbound queue is already full rather than blocking the
// caller (which is always on the hot path of an HMI state transition).
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.out <- ev:
		default:
			h.log.Warn().Msg("events websocket client too slow, dropping notification")
		}
	}
}

// AppStore is the minimal view of the live application set
// BroadcastingRouter needs to resolve a NAVI_STREAMING overlay's
// attenuation against every other registered application.
type AppStore interface {
	Apps() []*appmodel.Application
}

// BroadcastingRouter decorates a collab.MessageRouter, pushing an Event
// to the Hub on every SendHMIStatusNotification in addition to
// forwarding it to the wrapped router, and passing every other method
// straight through.
type BroadcastingRouter struct {
	inner collab.MessageRouter
	hub   *Hub

	mu   sync.Mutex
	apps AppStore
}

// NewBroadcastingRouter wraps router so its HMI-status notifications
// also reach the admin event stream.
func NewBroadcastingRouter(router collab.MessageRouter, hub *Hub) *BroadcastingRouter {
	return &BroadcastingRouter{inner: router, hub: hub}
}

// SetAppStore attaches the application set used to resolve
// NAVI_STREAMING conflicts. Wired in after appmgr.New, the same
// chicken-and-egg ordering as simulator.Router.SetAppStore.
func (r *BroadcastingRouter) SetAppStore(apps AppStore) {
	r.mu.Lock()
	r.apps = apps
	r.mu.Unlock()
}

func (r *BroadcastingRouter) ManageMobileCommand(cmd collab.Command) error {
	return r.inner.ManageMobileCommand(cmd)
}

func (r *BroadcastingRouter) ManageHMICommand(cmd collab.Command) error {
	return r.inner.ManageHMICommand(cmd)
}

func (r *BroadcastingRouter) GetDeviceMacAddressForHandle(handle string) (string, error) {
	return r.inner.GetDeviceMacAddressForHandle(handle)
}

func (r *BroadcastingRouter) SendHMIStatusNotification(app *appmodel.Application) {
	top := app.Stack.Top()
	level := top.EffectiveHMILevel(app.IsAudioApp(), false)
	r.mu.Lock()
	apps := r.apps
	r.mu.Unlock()
	var conflict bool
	if apps != nil && app.Stack.HasOverlay(appmodel.StateNaviStreaming) {
		conflict = appmodel.NaviStreamingConflict(apps.Apps(), app, false)
	}
	r.hub.Broadcast(Event{
		Type:      "hmi_status",
		Timestamp: time.Now(),
		Payload: hmiStatusPayload{
			PolicyAppID:   app.PolicyAppID,
			HMIAppID:      uint32(app.HMIAppID),
			HMILevel:      level.String(),
			AudioState:    top.EffectiveAudioState(app.IsAudioApp(), false, conflict).String(),
			SystemContext: top.EffectiveSystemContext().String(),
		},
	})
	r.inner.SendHMIStatusNotification(app)
}
