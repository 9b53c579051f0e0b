// Command sdl-core-sim is the self-contained demo/integration-test
// binary described in the message-router simulator's design: it starts
// an embedded MQTT broker, registers one demo application, publishes a
// single scripted mobile request against it, and then keeps the broker
// up so a developer can drive further requests by hand with any MQTT
// client (mosquitto_pub, MQTT Explorer, ...) against
// sdl/mobile/<connection_key>/request. Unlike cmd/sdl-core it carries no
// HTTP admin surface and no resumption persistence — it exists purely to
// exercise the simulator end to end without any other moving part.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab/simulator"
	"github.com/smartdevicelink/sdl-core-go/internal/requestctl"
)

func main() {
	var brokerAddr string
	flag.StringVar(&brokerAddr, "broker", ":1883", "Embedded MQTT broker listen address")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	requestCtl := requestctl.NewController(requestctl.Options{ThreadPoolSize: 2, Logger: log})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	requestCtl.Start(ctx)
	defer requestCtl.Stop()

	harness, err := simulator.New(simulator.Options{BrokerAddr: brokerAddr, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded broker")
	}
	defer harness.Stop()
	harness.SetMobileFactory(&simulator.EchoMobileFactory{Router: harness.Router, Log: log})

	mgr := appmgr.New(requestCtl, nil, harness.Router, nil, log)
	harness.SetManager(mgr)
	harness.Router.SetAppStore(mgr)
	if err := harness.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe simulator to broker")
	}

	app := mgr.RegisterApplication("com.example.demo", 1, appmodel.Capabilities{IsMedia: true})
	log.Info().
		Uint32("connection_key", uint32(app.ConnectionKey)).
		Uint32("hmi_app_id", uint32(app.HMIAppID)).
		Msg("demo application registered")

	runScriptedRequest(brokerAddr, app.ConnectionKey, log)

	log.Info().Str("topic", "sdl/mobile/1/request").Msg("broker running, publish more requests by hand to keep driving the demo")
	<-ctx.Done()
	log.Info().Msg("sdl-core-sim stopped")
}

// runScriptedRequest publishes one demo mobile request and waits briefly
// for the echo acknowledgement on the app's notification topic, proving
// the broker-to-core-to-broker round trip works before handing control
// to a human operator.
func runScriptedRequest(brokerAddr string, connKey appmodel.ConnectionKey, log zerolog.Logger) {
	pub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(brokerURLForDemo(brokerAddr)).SetClientID("sdl-core-sim-driver"))
	token := pub.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Msg("scripted demo client failed to connect, skipping scripted request")
		return
	}
	defer pub.Disconnect(250)

	ackCh := make(chan struct{}, 1)
	ackToken := pub.Subscribe(demoNotificationTopic(connKey), 0, func(_ mqtt.Client, msg mqtt.Message) {
		log.Info().Str("payload", string(msg.Payload())).Msg("received acknowledgement from core")
		select {
		case ackCh <- struct{}{}:
		default:
		}
	})
	ackToken.Wait()

	payload, _ := json.Marshal(map[string]any{
		"function_id":    1,
		"correlation_id": 1,
		"params":         map[string]any{"demo": true},
	})
	pubToken := pub.Publish(demoRequestTopic(connKey), 0, false, payload)
	pubToken.Wait()
	if err := pubToken.Error(); err != nil {
		log.Warn().Err(err).Msg("scripted demo request publish failed")
		return
	}
	log.Info().Msg("scripted demo request published")

	select {
	case <-ackCh:
	case <-time.After(2 * time.Second):
		log.Warn().Msg("timed out waiting for scripted demo acknowledgement")
	}
}

func demoRequestTopic(connKey appmodel.ConnectionKey) string {
	return "sdl/mobile/" + itoa(uint32(connKey)) + "/request"
}

func demoNotificationTopic(connKey appmodel.ConnectionKey) string {
	return "sdl/mobile/" + itoa(uint32(connKey)) + "/notification"
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func brokerURLForDemo(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "tcp://127.0.0.1" + addr
	}
	return "tcp://" + addr
}
