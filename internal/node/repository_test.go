package node

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/config"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/database"
	_ "github.com/nerrad567/mysensors-gateway/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "nodes.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func sampleNode() *Node {
	level := 73
	n := &Node{
		ID:              7,
		Name:            "garden",
		FirmwareVersion: "2.1",
		BatteryLevel:    &level,
		IsRepeatingNode: true,
		LastSeen:        time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
		ExternalID:      "ext-7",
	}
	soil := n.AddSensor(2)
	soil.Type = SensorMoisture
	soil.Description = "soil"
	soil.Invert = true
	soil.Remap = Remap{Enabled: true, FromMin: 0, FromMax: 1023, ToMin: 0, ToMax: 100}
	soil.History = HistoryPolicy{Enabled: true, EveryChange: true, IntervalSeconds: 300}
	soil.SetData(SensorData{DataType: DataLevel, State: "55", Timestamp: time.Date(2026, 10, 17, 9, 29, 0, 0, time.UTC)})

	temp := n.AddSensor(0)
	temp.Type = SensorTemp
	return n
}

func TestSQLiteRepository_SaveAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveNode(ctx, sampleNode()); err != nil {
		t.Fatalf("SaveNode() error = %v", err)
	}

	nodes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("List() returned %d nodes, want 1", len(nodes))
	}

	n := nodes[0]
	if n.Name != "garden" || n.FirmwareVersion != "2.1" || !n.IsRepeatingNode || n.ExternalID != "ext-7" {
		t.Errorf("node fields not persisted: %+v", n)
	}
	if n.BatteryLevel == nil || *n.BatteryLevel != 73 {
		t.Errorf("BatteryLevel = %v, want 73", n.BatteryLevel)
	}
	if !n.LastSeen.Equal(time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("LastSeen = %v", n.LastSeen)
	}

	// Sensor order follows insertion, not id.
	if len(n.Sensors) != 2 || n.Sensors[0].ID != 2 || n.Sensors[1].ID != 0 {
		t.Fatalf("sensor order not preserved: %+v", n.Sensors)
	}

	soil := n.Sensors[0]
	if soil.Type != SensorMoisture || soil.Description != "soil" || !soil.Invert {
		t.Errorf("sensor fields not persisted: %+v", soil)
	}
	if soil.Remap.FromMax != 1023 || soil.Remap.ToMax != 100 || !soil.Remap.Enabled {
		t.Errorf("remap not persisted: %+v", soil.Remap)
	}
	if soil.History != (HistoryPolicy{Enabled: true, EveryChange: true, IntervalSeconds: 300}) {
		t.Errorf("history policy not persisted: %+v", soil.History)
	}
	if d, ok := soil.Latest(DataLevel); !ok || d.State != "55" {
		t.Errorf("sensor data not persisted: %+v", soil.Data)
	}
}

func TestSQLiteRepository_SaveSensorUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n := sampleNode()
	if err := repo.SaveNode(ctx, n); err != nil {
		t.Fatal(err)
	}

	s := n.Sensors[0].DeepCopy()
	s.Description = "soil bed 2"
	s.SetData(SensorData{DataType: DataLevel, State: "61", Timestamp: time.Now()})
	if err := repo.SaveSensor(ctx, s); err != nil {
		t.Fatalf("SaveSensor() error = %v", err)
	}

	added := &Sensor{NodeID: 7, ID: 9, Type: SensorLock}
	if err := repo.SaveSensor(ctx, added); err != nil {
		t.Fatalf("SaveSensor(new) error = %v", err)
	}

	nodes, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := nodes[0]
	if len(got.Sensors) != 3 || got.Sensors[2].ID != 9 {
		t.Fatalf("new sensor should be appended last: %+v", got.Sensors)
	}
	if got.Sensors[0].Description != "soil bed 2" || got.Sensors[0].Data[DataLevel].State != "61" {
		t.Errorf("sensor not updated: %+v", got.Sensors[0])
	}
}

func TestSQLiteRepository_SaveSensorUnknownNode(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.SaveSensor(context.Background(), &Sensor{NodeID: 50, ID: 1}); err == nil {
		t.Error("SaveSensor() for a node that is not stored should fail")
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveNode(ctx, sampleNode()); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveNode(ctx, &Node{ID: 8}); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, 7); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, 7); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNodeNotFound", err)
	}

	var orphans int
	if err := repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sensors WHERE node_id = 7").Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("sensors of deleted node remain: %d", orphans)
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	nodes, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Errorf("List() after DeleteAll = %d nodes", len(nodes))
	}
}

func TestSQLiteRepository_InvalidNode(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.SaveNode(context.Background(), &Node{ID: BroadcastID}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("SaveNode(255) error = %v, want ErrInvalidNodeID", err)
	}
}
