package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mysensors-gateway/internal/bridges/mysensors"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

const (
	defaultQueueSize = 512

	// writeTimeout bounds one repository operation.
	writeTimeout = 5 * time.Second
)

// SensorWriter records sensor values in a time-series store.
// *influxdb.Client implements it.
type SensorWriter interface {
	WriteSensorValue(p influxdb.SensorPoint)
}

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the recorder's collaborators. Repository and Writer are each
// optional; a nil one disables that half of the recorder.
type Config struct {
	Gateway    *mysensors.Gateway
	Repository node.Repository
	Writer     SensorWriter
	Logger     Logger

	// QueueSize bounds events waiting to be persisted.
	QueueSize int
}

// seriesKey identifies one time series: a data type of one sensor.
type seriesKey struct {
	nodeID   int
	sensorID int
	dataType node.DataType
}

// Recorder persists gateway events.
type Recorder struct {
	gw     *mysensors.Gateway
	repo   node.Repository
	writer SensorWriter
	logger Logger

	queue       chan mysensors.Event
	unsubscribe func()
	dropped     atomic.Uint64

	// lastWrite is only touched by the worker.
	lastWrite map[seriesKey]time.Time
	now       func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a recorder. Call Load, then Start.
func New(cfg Config) (*Recorder, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Recorder{
		gw:        cfg.Gateway,
		repo:      cfg.Repository,
		writer:    cfg.Writer,
		logger:    cfg.Logger,
		queue:     make(chan mysensors.Event, size),
		lastWrite: make(map[seriesKey]time.Time),
		now:       time.Now,
		done:      make(chan struct{}),
	}, nil
}

// Load adds every stored node to the gateway registry and returns how many
// were loaded. Nodes the registry already holds are skipped.
func (r *Recorder) Load(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	nodes, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading nodes: %w", err)
	}

	loaded := 0
	for _, n := range nodes {
		if err := r.gw.AddNode(n); err != nil {
			r.logWarn("skipping stored node", "node_id", n.ID, "error", err)
			continue
		}
		loaded++
	}
	r.logInfo("nodes loaded", "count", loaded)
	return loaded, nil
}

// Start subscribes to the gateway and starts the worker.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
	r.unsubscribe = r.gw.Events().SubscribeAll(r.enqueue)
}

// Stop unsubscribes and persists what is still queued.
// Safe to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		close(r.done)
		r.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(ev mysensors.Event) {
	switch ev.Kind {
	case mysensors.EventNodeCreated, mysensors.EventNodeUpdated, mysensors.EventNodeBattery,
		mysensors.EventSensorCreated, mysensors.EventSensorUpdated,
		mysensors.EventNodeDeleted, mysensors.EventRegistryCleared:
	default:
		return
	}

	select {
	case r.queue <- ev:
	default:
		if r.dropped.Add(1) == 1 {
			r.logWarn("history queue full, dropping events", "event", string(ev.Kind))
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.queue:
			r.handle(ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.queue:
					r.handle(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) handle(ev mysensors.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch ev.Kind {
	case mysensors.EventNodeCreated, mysensors.EventNodeUpdated, mysensors.EventNodeBattery:
		err = r.saveNode(ctx, ev.Node)

	case mysensors.EventSensorCreated, mysensors.EventSensorUpdated:
		if ev.Kind == mysensors.EventSensorCreated {
			// The node row must exist before its sensors.
			err = r.saveNode(ctx, ev.Node)
		} else {
			err = r.saveSensor(ctx, ev.Sensor)
		}
		if ev.Data != nil {
			r.recordValue(ev.Sensor, *ev.Data)
		}

	case mysensors.EventNodeDeleted:
		r.forgetNode(ev.NodeID)
		if r.repo != nil {
			err = r.repo.Delete(ctx, ev.NodeID)
			if errors.Is(err, node.ErrNodeNotFound) {
				err = nil
			}
		}

	case mysensors.EventRegistryCleared:
		clear(r.lastWrite)
		if r.repo != nil {
			err = r.repo.DeleteAll(ctx)
		}
	}

	if err != nil {
		r.logError("persisting event failed", err, "event", string(ev.Kind), "node_id", ev.NodeID)
	}
}

func (r *Recorder) saveNode(ctx context.Context, n *node.Node) error {
	if n == nil || r.repo == nil {
		return nil
	}
	r.ensureNodeKey(n)
	for _, s := range n.Sensors {
		r.ensureSensorKey(s)
	}
	return r.repo.SaveNode(ctx, n)
}

func (r *Recorder) saveSensor(ctx context.Context, s *node.Sensor) error {
	if s == nil || r.repo == nil {
		return nil
	}
	r.ensureSensorKey(s)
	return r.repo.SaveSensor(ctx, s)
}

// ensureNodeKey fills in the node's persistence key, generating one the
// first time the node is seen. Events are snapshots, so the live registry
// is consulted before a new key is made.
func (r *Recorder) ensureNodeKey(n *node.Node) {
	if n.ExternalID != "" {
		return
	}
	if live, err := r.gw.Node(n.ID); err == nil && live.ExternalID != "" {
		n.ExternalID = live.ExternalID
		return
	}
	n.ExternalID = uuid.NewString()
	if err := r.gw.SetNodeExternalID(n.ID, n.ExternalID); err != nil {
		r.logDebug("node vanished before keying", "node_id", n.ID)
	}
}

func (r *Recorder) ensureSensorKey(s *node.Sensor) {
	if s.ExternalID != "" {
		return
	}
	if live, err := r.gw.Sensor(s.NodeID, s.ID); err == nil && live.ExternalID != "" {
		s.ExternalID = live.ExternalID
		return
	}
	s.ExternalID = uuid.NewString()
	if err := r.gw.SetSensorExternalID(s.NodeID, s.ID, s.ExternalID); err != nil {
		r.logDebug("sensor vanished before keying", "node_id", s.NodeID, "sensor_id", s.ID)
	}
}

// recordValue writes d to the time-series store when the sensor's history
// policy asks for it.
func (r *Recorder) recordValue(s *node.Sensor, d node.SensorData) {
	if r.writer == nil || s == nil || !s.History.Enabled {
		return
	}

	key := seriesKey{nodeID: s.NodeID, sensorID: s.ID, dataType: d.DataType}
	now := r.now()
	if !s.History.EveryChange {
		interval := time.Duration(s.History.IntervalSeconds) * time.Second
		if last, ok := r.lastWrite[key]; ok && now.Sub(last) < interval {
			return
		}
	}
	r.lastWrite[key] = now

	r.writer.WriteSensorValue(influxdb.SensorPoint{
		NodeID:     s.NodeID,
		SensorID:   s.ID,
		SensorType: s.Type.String(),
		DataType:   d.DataType.String(),
		Value:      d.State,
		Timestamp:  d.Timestamp,
		ExternalID: s.ExternalID,
	})
}

func (r *Recorder) forgetNode(id int) {
	for key := range r.lastWrite {
		if key.nodeID == id {
			delete(r.lastWrite, key)
		}
	}
}

func (r *Recorder) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Recorder) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Recorder) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Recorder) logError(msg string, err error, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}
