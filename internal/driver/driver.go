package driver

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
)

// SceneInfo is one entry of the driver's scene table.
type SceneInfo struct {
	ID    uint8  `json:"id"`
	Label string `json:"label"`
}

// ValueRef addresses one capability value on the network.
type ValueRef struct {
	HomeID  uint32 `json:"home_id"`
	NodeID  uint8  `json:"node_id"`
	ValueID uint64 `json:"value_id"`
}

// Poll intensities accepted by EnablePoll.
const (
	PollNormal  uint8 = 1
	PollReduced uint8 = 2
)

// Driver is the operation surface of the mesh-network driver SDK.
//
// Calls that change device state are fire-and-forget: the driver queues the
// request for the network and returns. The outcome arrives later as an
// Event on the Events channel.
type Driver interface {
	// Events returns the stream of asynchronous driver notifications.
	// The channel is closed when the driver stops.
	Events() <-chan Event

	// SetValue writes v to the referenced value.
	SetValue(ctx context.Context, ref ValueRef, v device.Value) error

	// SetNodeName and SetNodeLocation update node metadata held by the driver.
	SetNodeName(ctx context.Context, homeID uint32, nodeID uint8, name string) error
	SetNodeLocation(ctx context.Context, homeID uint32, nodeID uint8, location string) error

	// EnablePoll and DisablePoll control polling of a single value.
	EnablePoll(ctx context.Context, ref ValueRef, intensity uint8) error
	DisablePoll(ctx context.Context, ref ValueRef) error

	// SetPollInterval sets the interval between poll rounds.
	SetPollInterval(ctx context.Context, interval time.Duration) error

	// Scenes returns the driver's scene table.
	Scenes(ctx context.Context) ([]SceneInfo, error)
	CreateScene(ctx context.Context, label string) (uint8, error)
	RemoveScene(ctx context.Context, sceneID uint8) error
	AddSceneValue(ctx context.Context, sceneID uint8, ref ValueRef, v device.Value) error
	RemoveSceneValue(ctx context.Context, sceneID uint8, ref ValueRef) error
	ActivateScene(ctx context.Context, sceneID uint8) error

	// Controller commands for inclusion and exclusion.
	AddNode(ctx context.Context, homeID uint32, secure bool) error
	RemoveNode(ctx context.Context, homeID uint32) error
	CancelControllerCommand(ctx context.Context, homeID uint32) error
	ResetController(ctx context.Context, homeID uint32) error

	// WriteConfig flushes network state to the driver's config store.
	WriteConfig(ctx context.Context, homeID uint32) error
}
