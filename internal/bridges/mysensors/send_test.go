package mysensors

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

func TestSendNotConnected(t *testing.T) {
	gw := New(Options{})
	defer gw.Close()

	err := gw.Send(context.Background(), NewSetMessage(1, 1, node.DataStatus, "1"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestSendInvalidMessage(t *testing.T) {
	gw, tr := newTestGateway(t, Options{})

	err := gw.Send(context.Background(), ParseMessage("garbage"))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Send() error = %v, want ErrInvalidMessage", err)
	}
	if len(tr.Sent()) != 0 {
		t.Error("invalid message reached the transport")
	}
}

func TestSendTransportError(t *testing.T) {
	gw, tr := newTestGateway(t, Options{})
	rec := recordEvents(gw.Events())
	tr.SetSendError(ErrWriteFailed)

	err := gw.Send(context.Background(), NewSetMessage(1, 1, node.DataStatus, "1"))
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Send() error = %v, want ErrWriteFailed", err)
	}
	if gw.Stats().SendErrors != 1 {
		t.Errorf("SendErrors = %d, want 1", gw.Stats().SendErrors)
	}
	if len(rec.ofKind(EventMessageSent)) != 0 {
		t.Error("failed send published EventMessageSent")
	}
}

func TestSendSetToKnownSensor(t *testing.T) {
	gw, tr := newTestGateway(t, Options{StoreMessages: true})
	gw.AddNode(&node.Node{ID: 3, Sensors: []*node.Sensor{{
		ID:     1,
		Type:   node.SensorDimmer,
		Invert: false,
		Remap:  node.Remap{Enabled: true, FromMin: 0, FromMax: 1023, ToMin: 0, ToMax: 100},
	}}})
	rec := recordEvents(gw.Events())

	if err := gw.SendSensorState(context.Background(), 3, 1, node.DataPercentage, "100"); err != nil {
		t.Fatalf("SendSensorState() error = %v", err)
	}

	if got := tr.Sent(); !slices.Equal(got, []string{"3;1;1;0;3;1023\n"}) {
		t.Errorf("wire = %q, want native units", got)
	}

	sent := rec.ofKind(EventMessageSent)
	if len(sent) != 1 || sent[0].Message.Payload != "100" || sent[0].Message.Direction != DirectionOutgoing {
		t.Errorf("message sent events = %+v", sent)
	}

	updated := rec.ofKind(EventSensorUpdated)
	if len(updated) != 1 || updated[0].Data == nil || updated[0].Data.State != "100" {
		t.Fatalf("sensor updated events = %+v", updated)
	}
	s, _ := gw.Sensor(3, 1)
	if d, _ := s.Latest(node.DataPercentage); d.State != "100" {
		t.Errorf("stored state = %q, want consumer value 100", d.State)
	}

	if log := gw.Messages(); len(log) != 1 || log[0].Payload != "1023" {
		t.Errorf("message log = %+v, want wire form", log)
	}
	if gw.Stats().MessagesTx != 1 {
		t.Errorf("MessagesTx = %d, want 1", gw.Stats().MessagesTx)
	}
}

func TestSendInvertedSwitch(t *testing.T) {
	gw, tr := newTestGateway(t, Options{})
	gw.AddNode(&node.Node{ID: 2, Sensors: []*node.Sensor{{ID: 4, Type: node.SensorBinary, Invert: true}}})

	gw.SendSensorState(context.Background(), 2, 4, node.DataStatus, "1")
	gw.SendSensorState(context.Background(), 2, 4, node.DataStatus, "on")

	want := []string{"2;4;1;0;2;0\n", "2;4;1;0;2;on\n"}
	if got := tr.Sent(); !slices.Equal(got, want) {
		t.Errorf("wire = %q, want %q", got, want)
	}
}

func TestSendSetToUnknownSensor(t *testing.T) {
	gw, tr := newTestGateway(t, Options{})
	rec := recordEvents(gw.Events())

	if err := gw.Send(context.Background(), NewSetMessage(9, 9, node.DataStatus, "1")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(tr.Sent()) != 1 {
		t.Error("message not sent")
	}
	if len(rec.ofKind(EventSensorUpdated)) != 0 {
		t.Error("unknown sensor produced EventSensorUpdated")
	}
	if len(gw.Nodes()) != 0 {
		t.Error("send created a node")
	}

	if err := gw.SendSensorState(context.Background(), 9, 9, node.DataStatus, "1"); !errors.Is(err, node.ErrNodeNotFound) {
		t.Errorf("SendSensorState() error = %v, want ErrNodeNotFound", err)
	}
}

func TestSendReboot(t *testing.T) {
	gw, tr := newTestGateway(t, Options{})

	if err := gw.SendReboot(context.Background(), 12); err != nil {
		t.Fatalf("SendReboot() error = %v", err)
	}
	if got := tr.Sent(); !slices.Equal(got, []string{"12;0;3;0;13;0\n"}) {
		t.Errorf("sent = %q", got)
	}
}

func TestRebootAllNodes(t *testing.T) {
	gw, tr := newTestGateway(t, Options{RebootInterval: MinRebootInterval})

	done, err := gw.RebootAllNodes(context.Background())
	if err != nil {
		t.Fatalf("RebootAllNodes() error = %v", err)
	}
	if !gw.RebootInProgress() {
		t.Error("RebootInProgress() = false while running")
	}
	if _, err := gw.RebootAllNodes(context.Background()); !errors.Is(err, ErrRebootInProgress) {
		t.Errorf("second RebootAllNodes() error = %v, want ErrRebootInProgress", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("broadcast error = %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("broadcast did not finish")
	}

	sent := tr.Sent()
	if len(sent) != node.MaxNodeID {
		t.Fatalf("sent %d frames, want %d", len(sent), node.MaxNodeID)
	}
	for i, line := range sent {
		if want := fmt.Sprintf("%d;0;3;0;13;0\n", i+1); line != want {
			t.Fatalf("frame %d = %q, want %q", i, line, want)
		}
	}

	times := tr.SentTimes()
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < MinRebootInterval {
			t.Fatalf("gap before frame %d = %v, want at least %v", i, gap, MinRebootInterval)
		}
	}

	if gw.RebootInProgress() {
		t.Error("RebootInProgress() = true after completion")
	}
}

func TestRebootAllNodesCancel(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(gw *Gateway, cancelCtx context.CancelFunc)
	}{
		{"CancelReboot", func(gw *Gateway, _ context.CancelFunc) { gw.CancelReboot() }},
		{"context", func(_ *Gateway, cancel context.CancelFunc) { cancel() }},
		{"Close", func(gw *Gateway, _ context.CancelFunc) { gw.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, tr := newTestGateway(t, Options{RebootInterval: 50 * time.Millisecond})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done, err := gw.RebootAllNodes(ctx)
			if err != nil {
				t.Fatalf("RebootAllNodes() error = %v", err)
			}
			waitFor(t, time.Second, func() bool { return len(tr.Sent()) >= 2 })

			tt.cancel(gw, cancel)

			select {
			case err := <-done:
				if !errors.Is(err, context.Canceled) {
					t.Errorf("broadcast error = %v, want context.Canceled", err)
				}
			case <-time.After(time.Second):
				t.Fatal("broadcast did not stop")
			}

			if n := len(tr.Sent()); n >= node.MaxNodeID {
				t.Errorf("sent %d frames after cancel", n)
			}
			if gw.RebootInProgress() {
				t.Error("RebootInProgress() = true after cancel")
			}
		})
	}
}

func TestRebootAllNodesNotConnected(t *testing.T) {
	gw := New(Options{})
	defer gw.Close()

	if _, err := gw.RebootAllNodes(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RebootAllNodes() error = %v, want ErrNotConnected", err)
	}
}

func TestRebootAllNodesSendFailure(t *testing.T) {
	gw, tr := newTestGateway(t, Options{})
	done, err := gw.RebootAllNodes(context.Background())
	if err != nil {
		t.Fatalf("RebootAllNodes() error = %v", err)
	}
	tr.SimulateDrop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("broadcast error = %v, want ErrNotConnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast did not stop")
	}
}
