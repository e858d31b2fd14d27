package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-zwave/internal/driver/drivertest"
)

func TestScenesActivate(t *testing.T) {
	ctx := context.Background()
	drv := drivertest.New(1)
	scenes := NewScenes()

	if _, err := scenes.Activate(ctx, drv, "Morning"); !errors.Is(err, ErrNoScenes) {
		t.Fatalf("Activate() on empty table error = %v, want ErrNoScenes", err)
	}

	if _, err := drv.CreateScene(ctx, "Evening"); err != nil {
		t.Fatal(err)
	}
	if _, err := scenes.Activate(ctx, drv, "Morning"); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("Activate() missing scene error = %v, want ErrSceneNotFound", err)
	}

	id, err := drv.CreateScene(ctx, "Morning")
	if err != nil {
		t.Fatal(err)
	}
	if err := scenes.Rebuild(ctx, drv); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	sc, err := scenes.Activate(ctx, drv, "Morning")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if sc.ID != id || !sc.Active {
		t.Errorf("Activate() = %+v, want id %d active", sc, id)
	}
	calls := drv.CallsTo("ActivateScene")
	if len(calls) != 1 || calls[0].SceneID != id {
		t.Errorf("ActivateScene calls = %+v, want one for scene %d", calls, id)
	}
}

func TestScenesActivateIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	drv := drivertest.New(1)
	_, _ = drv.CreateScene(ctx, "Morning")

	if _, err := NewScenes().Activate(ctx, drv, "morning"); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("Activate(morning) error = %v, want ErrSceneNotFound", err)
	}
}

func TestScenesActiveFlagMovesAndSurvivesRebuild(t *testing.T) {
	ctx := context.Background()
	drv := drivertest.New(1)
	_, _ = drv.CreateScene(ctx, "Day")
	_, _ = drv.CreateScene(ctx, "Night")

	scenes := NewScenes()
	if err := scenes.Rebuild(ctx, drv); err != nil {
		t.Fatal(err)
	}
	_, _ = scenes.Activate(ctx, drv, "Day")
	_, _ = scenes.Activate(ctx, drv, "Night")

	if day, _ := scenes.Find("Day"); day.Active {
		t.Error("Day still active after Night was activated")
	}

	_, _ = drv.CreateScene(ctx, "Away")
	if err := scenes.Rebuild(ctx, drv); err != nil {
		t.Fatal(err)
	}
	if night, _ := scenes.Find("Night"); !night.Active {
		t.Error("Night lost its active flag on Rebuild")
	}
	if got := len(scenes.List()); got != 3 {
		t.Errorf("len(List()) = %d, want 3", got)
	}
}

func TestScenesRebuildDriverError(t *testing.T) {
	drv := drivertest.New(1)
	drv.FailOn("Scenes", drivertest.ErrRejected)

	if err := NewScenes().Rebuild(context.Background(), drv); !errors.Is(err, drivertest.ErrRejected) {
		t.Errorf("Rebuild() error = %v, want ErrRejected", err)
	}
}
