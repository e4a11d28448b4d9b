package mysensors

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// lineCollector gathers lines delivered by a transport.
type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *lineCollector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func newPipeTransport(t *testing.T) (*StreamTransport, net.Conn, *lineCollector) {
	t.Helper()

	local, remote := net.Pipe()
	tr := NewStreamTransport(local, "pipe", nil)
	lines := &lineCollector{}
	tr.SetOnLine(lines.add)
	t.Cleanup(func() {
		remote.Close()
		tr.Close()
	})
	return tr, remote, lines
}

func TestStreamTransportReadsLines(t *testing.T) {
	tr, remote, lines := newPipeTransport(t)

	writes := []string{"7;2;1;0;0;2", "1.5\n0;255;3;0;14;Gateway", " startup complete.\r\n"}
	for _, w := range writes {
		if _, err := remote.Write([]byte(w)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	waitFor(t, time.Second, func() bool { return len(lines.get()) == 2 })
	got := lines.get()
	if got[0] != "7;2;1;0;0;21.5\n" || got[1] != "0;255;3;0;14;Gateway startup complete.\r\n" {
		t.Errorf("lines = %q", got)
	}
	if tr.Stats().LinesRx != 2 {
		t.Errorf("LinesRx = %d, want 2", tr.Stats().LinesRx)
	}
}

func TestStreamTransportDropsLongLines(t *testing.T) {
	tr, remote, lines := newPipeTransport(t)

	long := strings.Repeat("x", MaxLineLength*3) + "\n"
	exact := strings.Repeat("y", MaxLineLength) + "\r\n"
	remote.Write([]byte(long + exact + "1;1;1;0;2;1\n"))

	waitFor(t, time.Second, func() bool { return len(lines.get()) == 2 })
	got := lines.get()
	if got[0] != exact || got[1] != "1;1;1;0;2;1\n" {
		t.Errorf("lines = %q", got)
	}
	if tr.Stats().LinesDropped != 1 {
		t.Errorf("LinesDropped = %d, want 1", tr.Stats().LinesDropped)
	}
}

func TestStreamTransportSend(t *testing.T) {
	tr, remote, _ := newPipeTransport(t)

	received := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(remote).ReadString('\n')
		received <- line
	}()

	if err := tr.Send(context.Background(), "3;1;1;0;2;1\n"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case line := <-received:
		if line != "3;1;1;0;2;1\n" {
			t.Errorf("remote read %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("remote received nothing")
	}
	if tr.Stats().LinesTx != 1 {
		t.Errorf("LinesTx = %d, want 1", tr.Stats().LinesTx)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Send(ctx, "x\n"); !errors.Is(err, context.Canceled) || !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Send() with cancelled context error = %v", err)
	}
}

func TestStreamTransportRemoteClose(t *testing.T) {
	tr, remote, _ := newPipeTransport(t)
	var dropped atomic.Int32
	tr.SetOnDisconnect(func() { dropped.Add(1) })

	remote.Close()

	waitFor(t, time.Second, func() bool { return dropped.Load() == 1 })
	if tr.IsConnected() {
		t.Error("IsConnected() = true after remote close")
	}
	if err := tr.Send(context.Background(), "x\n"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestStreamTransportCloseSkipsDisconnectCallback(t *testing.T) {
	tr, _, _ := newPipeTransport(t)
	var dropped atomic.Int32
	tr.SetOnDisconnect(func() { dropped.Add(1) })

	tr.Close()
	tr.Close()

	if dropped.Load() != 0 {
		t.Error("disconnect callback fired on Close")
	}
	if tr.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestStreamTransportRecoversCallbackPanic(t *testing.T) {
	tr, remote, _ := newPipeTransport(t)
	lines := &lineCollector{}
	tr.SetOnLine(func(line string) {
		if strings.HasPrefix(line, "boom") {
			panic("boom")
		}
		lines.add(line)
	})

	remote.Write([]byte("boom\n1;1;1;0;2;1\n"))

	waitFor(t, time.Second, func() bool { return len(lines.get()) == 1 })
	if tr.Stats().ErrorsTotal != 1 {
		t.Errorf("ErrorsTotal = %d, want 1", tr.Stats().ErrorsTotal)
	}
}

func TestDialTCPWithGateway(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer ln.Close()

	attached := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-attached
		conn.Write([]byte("0;255;3;0;14;Gateway startup complete.\n"))
		bufio.NewReader(conn).ReadString('\n')
	}()

	tr, err := DialTCP(context.Background(), ln.Addr().String(), time.Second, nil)
	if err != nil {
		t.Fatalf("DialTCP() error = %v", err)
	}
	defer tr.Close()

	gw := New(Options{})
	defer gw.Close()
	rec := recordEvents(gw.Events())
	if err := gw.Connect(tr); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	close(attached)

	waitFor(t, time.Second, func() bool { return len(rec.ofKind(EventMessageReceived)) == 1 })
	ev := rec.ofKind(EventMessageReceived)[0]
	if !ev.Message.IsInternal(InternalGatewayReady) {
		t.Errorf("received %+v", ev.Message)
	}
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := DialTCP(context.Background(), addr, 200*time.Millisecond, nil); err == nil {
		t.Error("DialTCP() to closed port succeeded")
	}
}
