// Package simulator provides a self-contained message-router harness
// for integration tests and the sdl-core-sim demo binary: an embedded
// MQTT broker plus a thin client that turns "a mobile/HMI message
// arrived" into the same decoded collab.MobileMessage/HMIMessage values
// a real transport adapter would hand the core. It never lets the core
// see raw wire bytes, and it never claims to be a production transport
// (spec.md's Non-goals exclude core transport ownership).
package simulator

import (
	"fmt"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
)

// Broker wraps an in-process MQTT broker, grounded on the teacher's
// mqttclient.Client counterpart but running the server side instead of
// a client: sdl-core-sim carries its own broker so the demo needs no
// externally managed MQTT infrastructure.
type Broker struct {
	inner      *mqttserver.Server
	log        zerolog.Logger
	listenAddr string
}

// NewBroker builds (but does not start) an embedded broker listening on
// addr, with an allow-all auth hook since the simulator is a local
// test/demo harness, not a deployment carrying real device traffic.
func NewBroker(addr string, log zerolog.Logger) (*Broker, error) {
	server := mqttserver.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("install allow-all auth hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "sdl-core-sim", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("add tcp listener on %s: %w", addr, err)
	}
	return &Broker{inner: server, log: log, listenAddr: addr}, nil
}

// addr returns the TCP address the broker is listening on.
func (b *Broker) addr() string {
	return b.listenAddr
}

// Start launches the broker's accept loop in the background.
func (b *Broker) Start() {
	go func() {
		if err := b.inner.Serve(); err != nil {
			b.log.Error().Err(err).Msg("embedded mqtt broker stopped")
		}
	}()
}

// Close shuts the broker down, disconnecting every connected client.
func (b *Broker) Close() error {
	return b.inner.Close()
}
