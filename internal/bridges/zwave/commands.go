package zwave

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

func refMessage(ref driver.ValueRef) commandMessage {
	return commandMessage{HomeID: ref.HomeID, NodeID: ref.NodeID, ValueID: ref.ValueID}
}

func (b *Bridge) SetValue(_ context.Context, ref driver.ValueRef, v device.Value) error {
	msg := refMessage(ref)
	msg.Type = string(v.Type())
	msg.Value = v.String()
	return b.publish(opSetValue, msg)
}

// SetNodeName forwards the name to the daemon and stages it for the next
// WriteConfig.
func (b *Bridge) SetNodeName(_ context.Context, homeID uint32, nodeID uint8, name string) error {
	if err := b.publish(opSetNodeName, commandMessage{HomeID: homeID, NodeID: nodeID, Name: &name}); err != nil {
		return err
	}
	b.stage(homeID, nodeID, func(m *NodeMeta) { m.Name = name })
	return nil
}

// SetNodeLocation forwards the location to the daemon and stages it for
// the next WriteConfig.
func (b *Bridge) SetNodeLocation(_ context.Context, homeID uint32, nodeID uint8, location string) error {
	if err := b.publish(opSetNodeLocation, commandMessage{HomeID: homeID, NodeID: nodeID, Location: &location}); err != nil {
		return err
	}
	b.stage(homeID, nodeID, func(m *NodeMeta) { m.Location = location })
	return nil
}

func (b *Bridge) stage(homeID uint32, nodeID uint8, apply func(*NodeMeta)) {
	key := nodeKey{homeID, nodeID}
	b.mu.Lock()
	defer b.mu.Unlock()
	meta, ok := b.nodes[key]
	if !ok {
		meta = NodeMeta{HomeID: homeID, NodeID: nodeID}
	}
	apply(&meta)
	b.nodes[key] = meta
	b.dirty[key] = true
}

func (b *Bridge) EnablePoll(_ context.Context, ref driver.ValueRef, intensity uint8) error {
	msg := refMessage(ref)
	msg.Intensity = intensity
	return b.publish(opEnablePoll, msg)
}

func (b *Bridge) DisablePoll(_ context.Context, ref driver.ValueRef) error {
	return b.publish(opDisablePoll, refMessage(ref))
}

func (b *Bridge) SetPollInterval(_ context.Context, interval time.Duration) error {
	return b.publish(opSetPollInterval, commandMessage{IntervalMS: interval.Milliseconds()})
}

// Scenes reads the scene table from the store.
func (b *Bridge) Scenes(ctx context.Context) ([]driver.SceneInfo, error) {
	return b.store.Scenes(ctx)
}

// CreateScene allocates and stores a scene, then announces it.
func (b *Bridge) CreateScene(ctx context.Context, label string) (uint8, error) {
	id, err := b.store.CreateScene(ctx, label)
	if err != nil {
		return 0, err
	}
	if err := b.publish(opCreateScene, commandMessage{SceneID: id, Label: label}); err != nil {
		b.logger.Warn("scene stored but not announced", "scene_id", id, "error", err)
	}
	return id, nil
}

func (b *Bridge) RemoveScene(ctx context.Context, sceneID uint8) error {
	if err := b.store.RemoveScene(ctx, sceneID); err != nil {
		return err
	}
	if err := b.publish(opRemoveScene, commandMessage{SceneID: sceneID}); err != nil {
		b.logger.Warn("scene removed but not announced", "scene_id", sceneID, "error", err)
	}
	return nil
}

func (b *Bridge) AddSceneValue(ctx context.Context, sceneID uint8, ref driver.ValueRef, v device.Value) error {
	if err := b.store.SetSceneValue(ctx, sceneID, ref, v); err != nil {
		return err
	}
	msg := refMessage(ref)
	msg.SceneID = sceneID
	msg.Type = string(v.Type())
	msg.Value = v.String()
	if err := b.publish(opAddSceneValue, msg); err != nil {
		b.logger.Warn("scene value stored but not announced", "scene_id", sceneID, "error", err)
	}
	return nil
}

func (b *Bridge) RemoveSceneValue(ctx context.Context, sceneID uint8, ref driver.ValueRef) error {
	if err := b.store.RemoveSceneValue(ctx, sceneID, ref); err != nil {
		return err
	}
	msg := refMessage(ref)
	msg.SceneID = sceneID
	if err := b.publish(opRemoveSceneValue, msg); err != nil {
		b.logger.Warn("scene value removed but not announced", "scene_id", sceneID, "error", err)
	}
	return nil
}

// ActivateScene sends the scene's stored assignments for the daemon to
// apply in one batch.
func (b *Bridge) ActivateScene(ctx context.Context, sceneID uint8) error {
	values, err := b.store.SceneValues(ctx, sceneID)
	if err != nil {
		return err
	}
	msg := commandMessage{SceneID: sceneID, Values: make([]sceneValueMsg, 0, len(values))}
	for _, sv := range values {
		msg.Values = append(msg.Values, sceneValueMsg{
			HomeID:  sv.Ref.HomeID,
			NodeID:  sv.Ref.NodeID,
			ValueID: sv.Ref.ValueID,
			Type:    string(sv.Value.Type()),
			Value:   sv.Value.String(),
		})
	}
	return b.publish(opActivateScene, msg)
}

func (b *Bridge) AddNode(_ context.Context, homeID uint32, secure bool) error {
	return b.publish(opAddNode, commandMessage{HomeID: homeID, Secure: secure})
}

func (b *Bridge) RemoveNode(_ context.Context, homeID uint32) error {
	return b.publish(opRemoveNode, commandMessage{HomeID: homeID})
}

func (b *Bridge) CancelControllerCommand(_ context.Context, homeID uint32) error {
	return b.publish(opCancelController, commandMessage{HomeID: homeID})
}

// ResetController wipes the network, so the stored metadata of its nodes
// goes too.
func (b *Bridge) ResetController(ctx context.Context, homeID uint32) error {
	if err := b.publish(opResetController, commandMessage{HomeID: homeID}); err != nil {
		return err
	}

	b.mu.Lock()
	for key := range b.nodes {
		if key.homeID == homeID {
			delete(b.nodes, key)
			delete(b.dirty, key)
		}
	}
	b.mu.Unlock()

	if err := b.store.DeleteNodes(ctx, homeID); err != nil {
		return fmt.Errorf("clearing node metadata: %w", err)
	}
	return nil
}

// WriteConfig persists staged node metadata and asks the daemon to save
// its own configuration.
func (b *Bridge) WriteConfig(ctx context.Context, homeID uint32) error {
	b.mu.Lock()
	var staged []NodeMeta
	for key := range b.dirty {
		if key.homeID == homeID {
			staged = append(staged, b.nodes[key])
		}
	}
	b.mu.Unlock()

	if err := b.store.SaveNodes(ctx, staged); err != nil {
		return fmt.Errorf("saving node metadata: %w", err)
	}

	b.mu.Lock()
	for _, n := range staged {
		key := nodeKey{n.HomeID, n.NodeID}
		// A later edit may have re-staged the node; only clear what was saved.
		if b.nodes[key] == n {
			delete(b.dirty, key)
		}
	}
	b.mu.Unlock()

	return b.publish(opWriteConfig, commandMessage{HomeID: homeID})
}
