package simulator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// brokerURL turns a bare listen address (":1883" or "127.0.0.1:1883")
// into the "tcp://" URL paho's client options expect.
func brokerURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	host := addr
	if strings.HasPrefix(addr, ":") {
		host = "127.0.0.1" + addr
	}
	return "tcp://" + host
}

// parseUint32 parses s as a base-10 uint32 into *out.
func parseUint32(s string, out *uint32) (int, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	*out = uint32(n)
	return len(s), nil
}

// Topic layout: one request topic per connection key so a subscriber
// can scope to a single simulated device, plus shared topics for
// HMI-directed traffic and HMI responses flowing back to the core.
const (
	topicHMIRequest  = "sdl/hmi/request"
	topicHMIResponse = "sdl/hmi/response"
	topicHMIStatus   = "sdl/hmi/status"
)

func mobileRequestTopic(connKey appmodel.ConnectionKey) string {
	return fmt.Sprintf("sdl/mobile/%d/request", connKey)
}

func mobileRequestWildcard() string {
	return "sdl/mobile/+/request"
}

func mobileNotificationTopic(connKey appmodel.ConnectionKey) string {
	return fmt.Sprintf("sdl/mobile/%d/notification", connKey)
}

// mobileEnvelope is the JSON wire shape published on a mobile request
// topic. Decoding it into collab.MobileMessage is the one and only
// place the simulator touches bytes; everything past this point is a
// plain Go value.
type mobileEnvelope struct {
	FunctionID    int32          `json:"function_id"`
	CorrelationID uint32         `json:"correlation_id"`
	Params        map[string]any `json:"params"`
	BinaryData    []byte         `json:"binary_data,omitempty"`
}

func decodeMobileEnvelope(connKey appmodel.ConnectionKey, payload []byte) (collab.MobileMessage, error) {
	var env mobileEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return collab.MobileMessage{}, fmt.Errorf("decode mobile envelope: %w", err)
	}
	return collab.MobileMessage{
		FunctionID:    env.FunctionID,
		CorrelationID: env.CorrelationID,
		ConnectionKey: connKey,
		Params:        env.Params,
		BinaryData:    env.BinaryData,
	}, nil
}

// hmiEnvelope is the JSON wire shape for HMI-originated responses and
// notifications arriving on topicHMIResponse.
type hmiEnvelope struct {
	FunctionID    int32          `json:"function_id"`
	CorrelationID uint32         `json:"correlation_id"`
	Params        map[string]any `json:"params"`
}

func decodeHMIEnvelope(payload []byte) (collab.HMIMessage, error) {
	var env hmiEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return collab.HMIMessage{}, fmt.Errorf("decode hmi envelope: %w", err)
	}
	return collab.HMIMessage{
		FunctionID:    env.FunctionID,
		CorrelationID: env.CorrelationID,
		Params:        env.Params,
	}, nil
}

// hmiStatusEnvelope is what SendHMIStatusNotification publishes for
// admin-surface/dashboard observers (and what internal/api's websocket
// event stream can also relay, per SPEC_FULL's DOMAIN STACK entry for
// gorilla/websocket).
type hmiStatusEnvelope struct {
	HMIAppID      appmodel.HMIAppID `json:"hmi_app_id"`
	PolicyAppID   string            `json:"policy_app_id"`
	HMILevel      string            `json:"hmi_level"`
	AudioState    string            `json:"audio_streaming_state"`
	SystemContext string            `json:"system_context"`
}

func encodeHMIStatus(app *appmodel.Application, level appmodel.HMILevel, naviStreamingConflict bool) ([]byte, error) {
	top := app.Stack.Top()
	return json.Marshal(hmiStatusEnvelope{
		HMIAppID:      app.HMIAppID,
		PolicyAppID:   app.PolicyAppID,
		HMILevel:      level.String(),
		AudioState:    top.EffectiveAudioState(app.IsAudioApp(), false, naviStreamingConflict).String(),
		SystemContext: top.EffectiveSystemContext().String(),
	})
}
