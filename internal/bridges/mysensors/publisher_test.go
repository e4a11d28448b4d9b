package mysensors

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

func newTestPublisher(t *testing.T, gw *Gateway, publishMessages bool) (*Publisher, *MockMQTTClient) {
	t.Helper()

	client := NewMockMQTTClient()
	p, err := NewPublisher(PublisherOptions{
		Gateway:         gw,
		Client:          client,
		Topics:          mqtt.NewTopics("test"),
		QoS:             1,
		PublishMessages: publishMessages,
	})
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(p.Stop)
	return p, client
}

func TestNewPublisherValidation(t *testing.T) {
	gw := New(Options{})
	defer gw.Close()

	tests := []struct {
		name string
		opts PublisherOptions
	}{
		{"no gateway", PublisherOptions{Client: NewMockMQTTClient()}},
		{"no client", PublisherOptions{Gateway: gw}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPublisher(tt.opts); err == nil {
				t.Error("NewPublisher() error = nil")
			}
		})
	}
}

func TestPublisherMirrorsSensorValues(t *testing.T) {
	gw, _ := newTestGateway(t, Options{})
	p, client := newTestPublisher(t, gw, false)

	gw.HandleLine("7;2;1;0;0;21.5\n")
	p.Stop()

	states := client.PublishedTo("test/state/")
	if len(states) != 1 {
		t.Fatalf("state publishes = %d, want 1", len(states))
	}
	if states[0].Topic != "test/state/7/2/V_TEMP" || !states[0].Retained {
		t.Errorf("state publish = %s retained=%v", states[0].Topic, states[0].Retained)
	}
	var state StateMessage
	if err := json.Unmarshal(states[0].Payload, &state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if state.Value != "21.5" || state.DataType != node.DataTemp {
		t.Errorf("state = %+v", state)
	}

	nodes := client.PublishedTo("test/node/7")
	if len(nodes) == 0 {
		t.Fatal("no node snapshot published")
	}
	var snap NodeMessage
	json.Unmarshal(nodes[len(nodes)-1].Payload, &snap)
	if snap.Node == nil || len(snap.Node.Sensors) != 1 {
		t.Errorf("node snapshot = %+v", snap)
	}

	if msgs := client.PublishedTo("test/message/"); len(msgs) != 0 {
		t.Errorf("raw messages published while disabled: %d", len(msgs))
	}
}

func TestPublisherRawMessages(t *testing.T) {
	gw, _ := newTestGateway(t, Options{})
	p, client := newTestPublisher(t, gw, true)

	gw.HandleLine("5;255;3;0;6;0\n")
	p.Stop()

	if got := len(client.PublishedTo("test/message/incoming")); got != 1 {
		t.Errorf("incoming publishes = %d, want 1", got)
	}
	if got := len(client.PublishedTo("test/message/outgoing")); got != 1 {
		t.Errorf("outgoing publishes = %d, want 1", got)
	}
}

func TestPublisherNodeDeleted(t *testing.T) {
	gw, _ := newTestGateway(t, Options{})
	gw.AddNode(&node.Node{ID: 4})
	p, client := newTestPublisher(t, gw, false)

	if err := gw.DeleteNode(4); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	p.Stop()

	pubs := client.PublishedTo("test/node/4")
	if len(pubs) != 1 || len(pubs[0].Payload) != 0 || !pubs[0].Retained {
		t.Errorf("delete publishes = %+v, want one empty retained payload", pubs)
	}
}

func TestPublisherGatewayEvents(t *testing.T) {
	gw, _ := newTestGateway(t, Options{})
	p, client := newTestPublisher(t, gw, false)

	gw.Disconnect()
	p.Stop()

	if got := client.PublishedTo("test/event/gateway.disconnected"); len(got) != 1 {
		t.Errorf("disconnected publishes = %d, want 1", len(got))
	}
}

func TestPublisherCommands(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		payload  string
		wantSent []string
		wantCode string
	}{
		{
			name:     "set",
			command:  CommandSet,
			payload:  `{"id":"c1","node_id":3,"sensor_id":1,"data_type":"V_STATUS","value":"1"}`,
			wantSent: []string{"3;1;1;0;2;1\n"},
		},
		{
			name:     "set unknown sensor",
			command:  CommandSet,
			payload:  `{"id":"c1","node_id":9,"sensor_id":1,"data_type":"V_STATUS","value":"1"}`,
			wantCode: ErrCodeUnknownSensor,
		},
		{
			name:     "raw",
			command:  CommandRaw,
			payload:  `{"id":"c1","line":"3;255;3;0;13;0"}`,
			wantSent: []string{"3;255;3;0;13;0\n"},
		},
		{
			name:     "raw malformed",
			command:  CommandRaw,
			payload:  `{"id":"c1","line":"nonsense"}`,
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "reboot",
			command:  CommandReboot,
			payload:  `{"id":"c1","node_id":3}`,
			wantSent: []string{"3;0;3;0;13;0\n"},
		},
		{
			name:     "reboot broadcast id",
			command:  CommandReboot,
			payload:  `{"id":"c1","node_id":255}`,
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "unknown",
			command:  "dance",
			payload:  `{"id":"c1"}`,
			wantCode: ErrCodeInvalidCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, tr := newTestGateway(t, Options{})
			gw.AddNode(&node.Node{ID: 3, Sensors: []*node.Sensor{{ID: 1, Type: node.SensorBinary}}})
			p, client := newTestPublisher(t, gw, false)

			topic := "test/command/" + tt.command
			if err := client.SimulateMessage("test/command/+", topic, []byte(tt.payload)); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			p.Stop()

			if got := tr.Sent(); strings.Join(got, "") != strings.Join(tt.wantSent, "") {
				t.Errorf("sent = %q, want %q", got, tt.wantSent)
			}

			acks := client.PublishedTo("test/ack/c1")
			if len(acks) != 1 {
				t.Fatalf("acks = %d, want 1", len(acks))
			}
			var ack AckMessage
			if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
				t.Fatalf("decoding ack: %v", err)
			}
			if ack.Command != tt.command {
				t.Errorf("ack command = %q", ack.Command)
			}
			if tt.wantCode == "" {
				if ack.Status != AckAccepted {
					t.Errorf("ack = %+v, want accepted", ack)
				}
				return
			}
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed with %s", ack, tt.wantCode)
			}
		})
	}
}

func TestPublisherBadCommandPayload(t *testing.T) {
	gw, _ := newTestGateway(t, Options{})
	_, client := newTestPublisher(t, gw, false)

	if err := client.SimulateMessage("test/command/+", "test/command/set", []byte("{")); err == nil {
		t.Error("handler accepted malformed JSON")
	}
}

func TestExecuteGeneratesID(t *testing.T) {
	gw, _ := newTestGateway(t, Options{})

	cmd := CommandMessage{}
	ack := Execute(context.Background(), gw, CommandCancel, &cmd)

	if cmd.ID == "" || ack.CommandID != cmd.ID {
		t.Errorf("ack id %q, command id %q", ack.CommandID, cmd.ID)
	}
	if ack.Status != AckAccepted {
		t.Errorf("ack = %+v", ack)
	}
}

func TestExecuteRebootAllBusy(t *testing.T) {
	gw, _ := newTestGateway(t, Options{RebootInterval: time.Second})

	first := Execute(context.Background(), gw, CommandRebootAll, &CommandMessage{})
	second := Execute(context.Background(), gw, CommandRebootAll, &CommandMessage{})
	gw.CancelReboot()

	if first.Status != AckAccepted {
		t.Errorf("first ack = %+v", first)
	}
	if second.Error == nil || second.Error.Code != ErrCodeBusy {
		t.Errorf("second ack = %+v, want BUSY", second)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotConnected, ErrCodeNotConnected},
		{node.ErrSensorNotFound, ErrCodeUnknownSensor},
		{ErrRebootInProgress, ErrCodeBusy},
		{ErrWriteFailed, ErrCodeGatewayError},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
