package zwave

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

func TestStoreSceneIDsReuseGaps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for want := uint8(1); want <= 3; want++ {
		id, err := s.CreateScene(ctx, "s")
		if err != nil || id != want {
			t.Fatalf("CreateScene() = %d, %v; want %d", id, err, want)
		}
	}
	if err := s.RemoveScene(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if id, _ := s.CreateScene(ctx, "again"); id != 2 {
		t.Errorf("CreateScene() after removing 2 = %d, want 2", id)
	}
	if err := s.RemoveScene(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if id, _ := s.CreateScene(ctx, "first"); id != 1 {
		t.Errorf("CreateScene() after removing 1 = %d, want 1", id)
	}
}

func TestStoreSceneTableFull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < maxSceneID; i++ {
		if _, err := s.CreateScene(ctx, "x"); err != nil {
			t.Fatalf("CreateScene() #%d error = %v", i+1, err)
		}
	}
	if _, err := s.CreateScene(ctx, "overflow"); !errors.Is(err, ErrSceneTableFull) {
		t.Errorf("CreateScene() on full table = %v, want ErrSceneTableFull", err)
	}
}

func TestStoreSceneValues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, _ := s.CreateScene(ctx, "Night")

	// High-bit value ids round-trip through the signed column.
	big := driver.ValueRef{HomeID: testHome, NodeID: 2, ValueID: 0xF000000000000001}
	small := driver.ValueRef{HomeID: testHome, NodeID: 3, ValueID: 7}

	if err := s.SetSceneValue(ctx, id, big, device.Bool(true)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSceneValue(ctx, id, small, device.Decimal(18)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSceneValue(ctx, id, small, device.Decimal(19.5)); err != nil {
		t.Fatal(err)
	}

	values, err := s.SceneValues(ctx, id)
	if err != nil {
		t.Fatalf("SceneValues() error = %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("values = %+v, want 2", values)
	}
	if values[0].Ref != big || values[0].Value != device.Bool(true) {
		t.Errorf("values[0] = %+v", values[0])
	}
	if values[1].Value != device.Decimal(19.5) {
		t.Errorf("values[1] = %+v, want replaced value", values[1])
	}

	if err := s.SetSceneValue(ctx, 200, small, device.Byte(1)); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("SetSceneValue() on missing scene = %v", err)
	}
	if err := s.RemoveScene(ctx, 200); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("RemoveScene() on missing scene = %v", err)
	}

	if err := s.RemoveScene(ctx, id); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scene_values").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d scene values left after removing the scene", n)
	}
}

func TestStoreNodesUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveNodes(ctx, []NodeMeta{{HomeID: 1, NodeID: 2, Name: "old", Location: "Hall"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveNodes(ctx, []NodeMeta{{HomeID: 1, NodeID: 2, Name: "new", Location: "Hall"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveNodes(ctx, nil); err != nil {
		t.Errorf("SaveNodes(nil) error = %v", err)
	}

	nodes, err := s.Nodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Name != "new" {
		t.Errorf("nodes = %+v", nodes)
	}
}
