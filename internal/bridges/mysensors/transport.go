package mysensors

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
)

// Transport limits.
const (
	// MaxLineLength is the longest frame accepted from the network, excluding
	// the terminator. Longer input is discarded up to the next newline.
	MaxLineLength = 256

	// defaultWriteTimeout bounds a write when the caller's context has no deadline.
	defaultWriteTimeout = 5 * time.Second

	// defaultDialTimeout is used by DialTCP when no timeout is given.
	defaultDialTimeout = 10 * time.Second
)

// Transport carries lines between the gateway and the sensor network.
type Transport interface {
	// Send writes one serialized frame, including its terminator.
	Send(ctx context.Context, line string) error

	// SetOnLine sets the callback receiving one delimited line at a time.
	SetOnLine(fn func(line string))

	// SetOnDisconnect sets the callback invoked when the link drops.
	SetOnDisconnect(fn func())

	// IsConnected reports whether the link is up.
	IsConnected() bool
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// TransportStats holds operational statistics of a StreamTransport.
type TransportStats struct {
	LinesRx      uint64
	LinesTx      uint64
	LinesDropped uint64 // over-long lines discarded
	ErrorsTotal  uint64
	LastActivity time.Time
	Connected    bool
}

// StreamTransport frames newline-terminated lines over a byte stream such as
// a serial port or a TCP connection to an Ethernet gateway.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Lines are delivered one at a time on the read goroutine, in arrival order.
//   - Close must not be called from the line or disconnect callbacks.
type StreamTransport struct {
	rwc  io.ReadWriteCloser
	name string

	connected atomic.Bool
	writeMu   sync.Mutex

	onLine       func(string)
	onDisconnect func()
	callbackMu   sync.RWMutex

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	linesRx      atomic.Uint64
	linesTx      atomic.Uint64
	linesDropped atomic.Uint64
	errorsTotal  atomic.Uint64
	lastActivity atomic.Int64
}

// Ensure StreamTransport implements Transport.
var _ Transport = (*StreamTransport)(nil)

// NewStreamTransport starts reading lines from rwc. name is used in logs.
func NewStreamTransport(rwc io.ReadWriteCloser, name string, logger Logger) *StreamTransport {
	t := &StreamTransport{
		rwc:    rwc,
		name:   name,
		done:   newCloseOnce(),
		logger: logger,
	}
	t.connected.Store(true)
	t.lastActivity.Store(time.Now().Unix())

	t.wg.Add(1)
	go t.readLoop()
	return t
}

// SerialConfig holds serial port settings for OpenSerial.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	// Timeout is the read timeout. Reads that time out are retried, so it only
	// bounds how quickly Close is noticed.
	Timeout time.Duration
}

// OpenSerial opens a serial gateway, typically 115200 8N1.
func OpenSerial(cfg SerialConfig, logger Logger) (*StreamTransport, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	return NewStreamTransport(port, cfg.Port, logger), nil
}

// DialTCP connects to an Ethernet gateway.
func DialTCP(ctx context.Context, address string, timeout time.Duration, logger Logger) (*StreamTransport, error) {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway %s: %w", address, err)
	}
	return NewStreamTransport(conn, address, logger), nil
}

func (t *StreamTransport) readLoop() {
	defer t.wg.Done()

	r := bufio.NewReaderSize(t.rwc, MaxLineLength)
	var pending strings.Builder
	discarding := false

	for {
		chunk, err := r.ReadSlice('\n')
		if len(chunk) > 0 {
			complete := chunk[len(chunk)-1] == '\n'
			length := pending.Len() + len(bytes.TrimRight(chunk, "\r\n"))
			switch {
			case discarding:
				// skip to the next newline
			case length > MaxLineLength:
				t.linesDropped.Add(1)
				t.logWarn("discarding over-long line", "transport", t.name, "length", length)
				pending.Reset()
				discarding = true
			default:
				pending.Write(chunk)
			}

			if complete {
				if !discarding {
					t.deliver(pending.String())
				}
				pending.Reset()
				discarding = false
			}
		}

		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) || t.isRecoverable(err) {
				continue
			}
			t.handleReadError(err)
			return
		}
	}
}

func (t *StreamTransport) isRecoverable(err error) bool {
	if t.isClosed() {
		return false
	}
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (t *StreamTransport) handleReadError(err error) {
	t.connected.Store(false)
	if t.isClosed() {
		return
	}

	if !errors.Is(err, io.EOF) {
		t.errorsTotal.Add(1)
	}
	t.logError("read failed, link down", err)

	t.callbackMu.RLock()
	fn := t.onDisconnect
	t.callbackMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (t *StreamTransport) deliver(line string) {
	t.linesRx.Add(1)
	t.lastActivity.Store(time.Now().Unix())

	t.callbackMu.RLock()
	fn := t.onLine
	t.callbackMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.errorsTotal.Add(1)
			t.logError("line callback panicked", fmt.Errorf("%v", r))
		}
	}()
	fn(line)
}

// Send writes line to the stream. It fails with ErrNotConnected once the link
// is down.
func (t *StreamTransport) Send(ctx context.Context, line string) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriteFailed, ctx.Err())
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if d, ok := t.rwc.(interface{ SetWriteDeadline(time.Time) error }); ok {
		deadline := time.Now().Add(defaultWriteTimeout)
		if cd, ok := ctx.Deadline(); ok && cd.Before(deadline) {
			deadline = cd
		}
		if err := d.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrWriteFailed, err)
		}
	}

	if _, err := io.WriteString(t.rwc, line); err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	t.linesTx.Add(1)
	t.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetOnLine sets the callback for received lines.
func (t *StreamTransport) SetOnLine(fn func(string)) {
	t.callbackMu.Lock()
	t.onLine = fn
	t.callbackMu.Unlock()
}

// SetOnDisconnect sets the callback invoked when the stream fails.
// It is not called after Close.
func (t *StreamTransport) SetOnDisconnect(fn func()) {
	t.callbackMu.Lock()
	t.onDisconnect = fn
	t.callbackMu.Unlock()
}

// IsConnected returns true until the stream fails or is closed.
func (t *StreamTransport) IsConnected() bool {
	return t.connected.Load()
}

// Stats returns current operational statistics.
func (t *StreamTransport) Stats() TransportStats {
	return TransportStats{
		LinesRx:      t.linesRx.Load(),
		LinesTx:      t.linesTx.Load(),
		LinesDropped: t.linesDropped.Load(),
		ErrorsTotal:  t.errorsTotal.Load(),
		LastActivity: time.Unix(t.lastActivity.Load(), 0),
		Connected:    t.IsConnected(),
	}
}

// Close stops the read loop and closes the stream. Safe to call multiple times.
func (t *StreamTransport) Close() error {
	t.done.Close()
	t.connected.Store(false)

	err := t.rwc.Close()
	t.wg.Wait()

	t.logInfo("transport closed", "transport", t.name)
	return err
}

func (t *StreamTransport) isClosed() bool {
	select {
	case <-t.done.Done():
		return true
	default:
		return false
	}
}

func (t *StreamTransport) logInfo(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (t *StreamTransport) logWarn(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (t *StreamTransport) logError(msg string, err error) {
	t.loggerMu.RLock()
	logger := t.logger
	t.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "transport", t.name, "error", err)
	}
}
