package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// Scene is a cached entry of the driver's scene table.
type Scene struct {
	ID     uint8
	Name   string
	Active bool
}

// SceneTable is the part of the driver the scene cache reads from.
type SceneTable interface {
	Scenes(ctx context.Context) ([]driver.SceneInfo, error)
	ActivateScene(ctx context.Context, sceneID uint8) error
}

// Scenes caches the driver's scene table. The driver stays the source of
// truth; Rebuild must be called after every create or remove.
//
// Thread Safety: all methods are safe for concurrent use.
type Scenes struct {
	mu     sync.RWMutex
	scenes []Scene
}

// NewScenes creates an empty scene cache.
func NewScenes() *Scenes {
	return &Scenes{}
}

// Rebuild rereads the scene table. Active flags survive for scenes that are
// still present.
func (s *Scenes) Rebuild(ctx context.Context, table SceneTable) error {
	infos, err := table.Scenes(ctx)
	if err != nil {
		return fmt.Errorf("reading scene table: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[uint8]bool, len(s.scenes))
	for _, sc := range s.scenes {
		active[sc.ID] = sc.Active
	}

	s.scenes = make([]Scene, 0, len(infos))
	for _, info := range infos {
		s.scenes = append(s.scenes, Scene{ID: info.ID, Name: info.Label, Active: active[info.ID]})
	}
	return nil
}

// List returns a copy of the cached scenes.
func (s *Scenes) List() []Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Scene, len(s.scenes))
	copy(out, s.scenes)
	return out
}

// Find looks a scene up in the cache by exact name.
func (s *Scenes) Find(name string) (Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scenes {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scene{}, false
}

// Lookup resolves name against the driver's scene table. It returns
// ErrNoScenes when the table is empty and ErrSceneNotFound when no label
// matches exactly.
func Lookup(ctx context.Context, table SceneTable, name string) (driver.SceneInfo, error) {
	infos, err := table.Scenes(ctx)
	if err != nil {
		return driver.SceneInfo{}, fmt.Errorf("reading scene table: %w", err)
	}
	if len(infos) == 0 {
		return driver.SceneInfo{}, ErrNoScenes
	}
	for _, info := range infos {
		if info.Label == name {
			return info, nil
		}
	}
	return driver.SceneInfo{}, fmt.Errorf("%w: %s", ErrSceneNotFound, name)
}

// Activate activates the named scene through the driver and marks it as the
// active scene in the cache.
func (s *Scenes) Activate(ctx context.Context, table SceneTable, name string) (Scene, error) {
	if name == "" {
		return Scene{}, ErrInvalidName
	}
	info, err := Lookup(ctx, table, name)
	if err != nil {
		return Scene{}, err
	}
	if err := table.ActivateScene(ctx, info.ID); err != nil {
		return Scene{}, fmt.Errorf("activating scene %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.scenes {
		s.scenes[i].Active = s.scenes[i].ID == info.ID
		found = found || s.scenes[i].Active
	}
	if !found {
		s.scenes = append(s.scenes, Scene{ID: info.ID, Name: info.Label, Active: true})
	}
	return Scene{ID: info.ID, Name: info.Label, Active: true}, nil
}
