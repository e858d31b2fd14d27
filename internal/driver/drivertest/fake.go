// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// ErrRejected is returned by operations configured to fail.
var ErrRejected = errors.New("drivertest: rejected")

// Call records one driver operation.
type Call struct {
	Op      string
	HomeID  uint32
	NodeID  uint8
	ValueID uint64
	SceneID uint8
	Value   device.Value
	Arg     string
}

type fakeScene struct {
	label  string
	values map[uint64]device.Value
}

// Fake is a scriptable driver. Events pushed with Emit are delivered on the
// Events channel; every operation is recorded and can be made to fail.
type Fake struct {
	mu        sync.Mutex
	events    chan driver.Event
	calls     []Call
	scenes    map[uint8]*fakeScene
	nextScene uint8
	fail      map[string]error

	PollInterval time.Duration
}

// New creates a fake with an event buffer of the given size.
func New(buffer int) *Fake {
	return &Fake{
		events:    make(chan driver.Event, buffer),
		scenes:    make(map[uint8]*fakeScene),
		nextScene: 1,
		fail:      make(map[string]error),
	}
}

// Emit queues an event for the consumer.
func (f *Fake) Emit(ev driver.Event) {
	f.events <- ev
}

// Close closes the event channel.
func (f *Fake) Close() {
	close(f.events)
}

// FailOn makes the named operation return err. A nil err clears it.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// Calls returns a copy of the recorded operations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded operations with the given name.
func (f *Fake) CallsTo(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded operations.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// SceneValues returns the values stored in a scene.
func (f *Fake) SceneValues(sceneID uint8) map[uint64]device.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scenes[sceneID]
	if !ok {
		return nil
	}
	out := make(map[uint64]device.Value, len(sc.values))
	for k, v := range sc.values {
		out[k] = v
	}
	return out
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail[c.Op]
}

func (f *Fake) Events() <-chan driver.Event { return f.events }

func (f *Fake) SetValue(_ context.Context, ref driver.ValueRef, v device.Value) error {
	return f.record(Call{Op: "SetValue", HomeID: ref.HomeID, NodeID: ref.NodeID, ValueID: ref.ValueID, Value: v})
}

func (f *Fake) SetNodeName(_ context.Context, homeID uint32, nodeID uint8, name string) error {
	return f.record(Call{Op: "SetNodeName", HomeID: homeID, NodeID: nodeID, Arg: name})
}

func (f *Fake) SetNodeLocation(_ context.Context, homeID uint32, nodeID uint8, location string) error {
	return f.record(Call{Op: "SetNodeLocation", HomeID: homeID, NodeID: nodeID, Arg: location})
}

func (f *Fake) EnablePoll(_ context.Context, ref driver.ValueRef, intensity uint8) error {
	return f.record(Call{Op: "EnablePoll", HomeID: ref.HomeID, NodeID: ref.NodeID, ValueID: ref.ValueID, Arg: fmt.Sprint(intensity)})
}

func (f *Fake) DisablePoll(_ context.Context, ref driver.ValueRef) error {
	return f.record(Call{Op: "DisablePoll", HomeID: ref.HomeID, NodeID: ref.NodeID, ValueID: ref.ValueID})
}

func (f *Fake) SetPollInterval(_ context.Context, interval time.Duration) error {
	if err := f.record(Call{Op: "SetPollInterval", Arg: interval.String()}); err != nil {
		return err
	}
	f.mu.Lock()
	f.PollInterval = interval
	f.mu.Unlock()
	return nil
}

func (f *Fake) Scenes(_ context.Context) ([]driver.SceneInfo, error) {
	if err := f.record(Call{Op: "Scenes"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]driver.SceneInfo, 0, len(f.scenes))
	for id, sc := range f.scenes {
		out = append(out, driver.SceneInfo{ID: id, Label: sc.label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) CreateScene(_ context.Context, label string) (uint8, error) {
	if err := f.record(Call{Op: "CreateScene", Arg: label}); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextScene
	f.nextScene++
	f.scenes[id] = &fakeScene{label: label, values: make(map[uint64]device.Value)}
	return id, nil
}

func (f *Fake) RemoveScene(_ context.Context, sceneID uint8) error {
	if err := f.record(Call{Op: "RemoveScene", SceneID: sceneID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scenes, sceneID)
	return nil
}

func (f *Fake) AddSceneValue(_ context.Context, sceneID uint8, ref driver.ValueRef, v device.Value) error {
	if err := f.record(Call{Op: "AddSceneValue", SceneID: sceneID, HomeID: ref.HomeID, NodeID: ref.NodeID, ValueID: ref.ValueID, Value: v}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scenes[sceneID]
	if !ok {
		return ErrRejected
	}
	sc.values[ref.ValueID] = v
	return nil
}

func (f *Fake) RemoveSceneValue(_ context.Context, sceneID uint8, ref driver.ValueRef) error {
	if err := f.record(Call{Op: "RemoveSceneValue", SceneID: sceneID, HomeID: ref.HomeID, NodeID: ref.NodeID, ValueID: ref.ValueID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if sc, ok := f.scenes[sceneID]; ok {
		delete(sc.values, ref.ValueID)
	}
	return nil
}

func (f *Fake) ActivateScene(_ context.Context, sceneID uint8) error {
	return f.record(Call{Op: "ActivateScene", SceneID: sceneID})
}

func (f *Fake) AddNode(_ context.Context, homeID uint32, secure bool) error {
	return f.record(Call{Op: "AddNode", HomeID: homeID, Arg: fmt.Sprint(secure)})
}

func (f *Fake) RemoveNode(_ context.Context, homeID uint32) error {
	return f.record(Call{Op: "RemoveNode", HomeID: homeID})
}

func (f *Fake) CancelControllerCommand(_ context.Context, homeID uint32) error {
	return f.record(Call{Op: "CancelControllerCommand", HomeID: homeID})
}

func (f *Fake) ResetController(_ context.Context, homeID uint32) error {
	return f.record(Call{Op: "ResetController", HomeID: homeID})
}

func (f *Fake) WriteConfig(_ context.Context, homeID uint32) error {
	return f.record(Call{Op: "WriteConfig", HomeID: homeID})
}

var _ driver.Driver = (*Fake)(nil)
