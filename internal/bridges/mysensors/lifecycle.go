package mysensors

// Connect attaches t and publishes EventConnected. A transport already
// attached is detached first, publishing EventDisconnected if it was
// connected. Lines from t are processed with HandleLine; a disconnect
// reported by t detaches it as Disconnect would.
func (g *Gateway) Connect(t Transport) error {
	if t == nil {
		return ErrNilTransport
	}
	g.Disconnect()

	g.connMu.Lock()
	g.transport = t
	g.connected = true
	g.connMu.Unlock()

	t.SetOnLine(func(line string) {
		if !g.isActive(t) {
			return
		}
		if err := g.HandleLine(line); err != nil {
			g.logError("message rejected", err, "line", line)
		}
	})
	t.SetOnDisconnect(func() {
		g.detach(t)
	})

	g.metrics.setConnected(true)
	g.logInfo("gateway connected")
	g.trace(EventStateTrace, "connected")
	g.bus.Publish(Event{Kind: EventConnected})
	return nil
}

// Disconnect detaches the transport and publishes EventDisconnected.
// It does nothing when no transport is attached.
func (g *Gateway) Disconnect() {
	g.detach(nil)
}

// detach removes the attached transport. When only is non-nil the
// transport is removed only if it is still the attached one, so late
// callbacks from a replaced transport are ignored.
func (g *Gateway) detach(only Transport) {
	g.connMu.Lock()
	t := g.transport
	if t == nil || (only != nil && t != only) {
		g.connMu.Unlock()
		return
	}
	wasConnected := g.connected
	g.transport = nil
	g.connected = false
	g.connMu.Unlock()

	t.SetOnLine(nil)
	t.SetOnDisconnect(nil)

	if !wasConnected {
		return
	}
	g.metrics.setConnected(false)
	g.logInfo("gateway disconnected")
	g.trace(EventStateTrace, "disconnected")
	g.bus.Publish(Event{Kind: EventDisconnected})
}

// IsConnected reports whether a transport is attached and itself connected.
func (g *Gateway) IsConnected() bool {
	return g.activeTransport() != nil
}

func (g *Gateway) activeTransport() Transport {
	g.connMu.Lock()
	defer g.connMu.Unlock()

	if !g.connected || g.transport == nil || !g.transport.IsConnected() {
		return nil
	}
	return g.transport
}

func (g *Gateway) isActive(t Transport) bool {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	return g.connected && g.transport == t
}
