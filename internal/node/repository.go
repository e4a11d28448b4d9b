package node

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists node and sensor settings between restarts.
// This abstraction allows for SQLite and in-memory implementations.
type Repository interface {
	// List returns every stored node with its sensors and their latest data.
	List(ctx context.Context) ([]*Node, error)

	// SaveNode inserts or updates a node and all of its sensors.
	SaveNode(ctx context.Context, n *Node) error

	// SaveSensor inserts or updates one sensor. Its node must already be stored.
	SaveSensor(ctx context.Context, s *Sensor) error

	// Delete removes a node and its sensors.
	// Returns ErrNodeNotFound if the node does not exist.
	Delete(ctx context.Context, id int) error

	// DeleteAll removes every node.
	DeleteAll(ctx context.Context) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// List returns every stored node ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, external_id, name, firmware_version, battery_level, is_repeating, last_seen
		FROM nodes
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	byID := make(map[int]*Node)
	for rows.Next() {
		var (
			n        Node
			battery  sql.NullInt64
			lastSeen sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.ExternalID, &n.Name, &n.FirmwareVersion,
			&battery, &n.IsRepeatingNode, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		if battery.Valid {
			level := int(battery.Int64)
			n.BatteryLevel = &level
		}
		n.LastSeen = parseTime(lastSeen)
		nodes = append(nodes, &n)
		byID[n.ID] = &n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	if err := r.loadSensors(ctx, byID); err != nil {
		return nil, err
	}
	if err := r.loadSensorData(ctx, byID); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *SQLiteRepository) loadSensors(ctx context.Context, byID map[int]*Node) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, sensor_id, type, description, external_id, invert,
			remap_enabled, remap_from_min, remap_from_max, remap_to_min, remap_to_max,
			history_enabled, history_every_change, history_interval
		FROM sensors
		ORDER BY node_id, position, sensor_id`)
	if err != nil {
		return fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s := &Sensor{Data: make(map[DataType]SensorData)}
		if err := rows.Scan(&s.NodeID, &s.ID, &s.Type, &s.Description, &s.ExternalID, &s.Invert,
			&s.Remap.Enabled, &s.Remap.FromMin, &s.Remap.FromMax, &s.Remap.ToMin, &s.Remap.ToMax,
			&s.History.Enabled, &s.History.EveryChange, &s.History.IntervalSeconds); err != nil {
			return fmt.Errorf("scanning sensor: %w", err)
		}
		if n, ok := byID[s.NodeID]; ok {
			n.Sensors = append(n.Sensors, s)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating sensors: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) loadSensorData(ctx context.Context, byID map[int]*Node) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, sensor_id, data_type, state, updated_at
		FROM sensor_data`)
	if err != nil {
		return fmt.Errorf("querying sensor data: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			nodeID, sensorID int
			d                SensorData
			updated          sql.NullString
		)
		if err := rows.Scan(&nodeID, &sensorID, &d.DataType, &d.State, &updated); err != nil {
			return fmt.Errorf("scanning sensor data: %w", err)
		}
		d.Timestamp = parseTime(updated)
		if n, ok := byID[nodeID]; ok {
			if s, ok := n.Sensor(sensorID); ok {
				s.SetData(d)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating sensor data: %w", err)
	}
	return nil
}

// SaveNode upserts the node row and every sensor in one transaction.
func (r *SQLiteRepository) SaveNode(ctx context.Context, n *Node) error {
	if n == nil || !ValidNodeID(n.ID) {
		return ErrInvalidNodeID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var battery sql.NullInt64
	if n.BatteryLevel != nil {
		battery = sql.NullInt64{Int64: int64(*n.BatteryLevel), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, external_id, name, firmware_version, battery_level, is_repeating, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_id = excluded.external_id,
			name = excluded.name,
			firmware_version = excluded.firmware_version,
			battery_level = excluded.battery_level,
			is_repeating = excluded.is_repeating,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		n.ID, n.ExternalID, n.Name, n.FirmwareVersion, battery, n.IsRepeatingNode,
		formatTime(n.LastSeen), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upserting node %d: %w", n.ID, err)
	}

	for _, s := range n.Sensors {
		if err := saveSensor(ctx, tx, n.ID, s); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing node %d: %w", n.ID, err)
	}
	return nil
}

// SaveSensor upserts one sensor and its data slots.
func (r *SQLiteRepository) SaveSensor(ctx context.Context, s *Sensor) error {
	if s == nil {
		return ErrSensorNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := saveSensor(ctx, tx, s.NodeID, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sensor %d/%d: %w", s.NodeID, s.ID, err)
	}
	return nil
}

func saveSensor(ctx context.Context, ex execer, nodeID int, s *Sensor) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sensors (
			node_id, sensor_id, type, description, external_id, invert,
			remap_enabled, remap_from_min, remap_from_max, remap_to_min, remap_to_max,
			history_enabled, history_every_change, history_interval, position
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM sensors WHERE node_id = ?))
		ON CONFLICT(node_id, sensor_id) DO UPDATE SET
			type = excluded.type,
			description = excluded.description,
			external_id = excluded.external_id,
			invert = excluded.invert,
			remap_enabled = excluded.remap_enabled,
			remap_from_min = excluded.remap_from_min,
			remap_from_max = excluded.remap_from_max,
			remap_to_min = excluded.remap_to_min,
			remap_to_max = excluded.remap_to_max,
			history_enabled = excluded.history_enabled,
			history_every_change = excluded.history_every_change,
			history_interval = excluded.history_interval`,
		nodeID, s.ID, int(s.Type), s.Description, s.ExternalID, s.Invert,
		s.Remap.Enabled, s.Remap.FromMin, s.Remap.FromMax, s.Remap.ToMin, s.Remap.ToMax,
		s.History.Enabled, s.History.EveryChange, s.History.IntervalSeconds,
		nodeID,
	)
	if err != nil {
		return fmt.Errorf("upserting sensor %d/%d: %w", nodeID, s.ID, err)
	}

	for _, d := range s.Data {
		ts := d.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO sensor_data (node_id, sensor_id, data_type, state, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(node_id, sensor_id, data_type) DO UPDATE SET
				state = excluded.state,
				updated_at = excluded.updated_at`,
			nodeID, s.ID, int(d.DataType), d.State, formatTime(ts),
		); err != nil {
			return fmt.Errorf("upserting data %d/%d/%s: %w", nodeID, s.ID, d.DataType, err)
		}
	}
	return nil
}

// Delete removes a node; its sensors and data go with it through cascading keys.
func (r *SQLiteRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting node %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

// DeleteAll removes every node.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return fmt.Errorf("deleting nodes: %w", err)
	}
	return nil
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
