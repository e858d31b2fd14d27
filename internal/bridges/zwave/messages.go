package zwave

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// valueMessage is a capability value on the wire. The value itself travels
// as text and is parsed against the declared type.
type valueMessage struct {
	device.CapabilityValue
	Text string `json:"value"`
}

// eventMessage is published by the daemon on {prefix}/event/{type}.
//
//	{"home_id":25469681,"node_id":5,"value":{"id":72057594126794752,
//	 "class":49,"label":"Temperature","type":"decimal","value":"19.5"}}
type eventMessage struct {
	HomeID          uint32           `json:"home_id"`
	NodeID          uint8            `json:"node_id"`
	ValueID         uint64           `json:"value_id,omitempty"`
	Value           *valueMessage    `json:"value,omitempty"`
	Node            *device.NodeInfo `json:"node,omitempty"`
	ControllerState int              `json:"controller_state,omitempty"`
	EventData       uint8            `json:"event_data,omitempty"`
}

// eventTypeFromTopic returns the last topic segment.
func eventTypeFromTopic(topic string) driver.EventType {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return driver.EventType(topic[i+1:])
	}
	return driver.EventType(topic)
}

// decodeEvent turns a daemon message into a driver event.
func decodeEvent(eventType driver.EventType, payload []byte) (driver.Event, error) {
	var msg eventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return driver.Event{}, fmt.Errorf("%w: %s: %w", ErrBadEvent, eventType, err)
	}

	ev := driver.Event{
		Type:            eventType,
		HomeID:          msg.HomeID,
		NodeID:          msg.NodeID,
		ValueID:         msg.ValueID,
		Node:            msg.Node,
		ControllerState: driver.ControllerState(msg.ControllerState),
		EventData:       msg.EventData,
	}

	switch eventType {
	case driver.EventValueAdded, driver.EventValueChanged, driver.EventValueRefreshed:
		if msg.Value == nil {
			return driver.Event{}, fmt.Errorf("%w: %s without value", ErrBadEvent, eventType)
		}
		cv := msg.Value.CapabilityValue
		v, err := device.Parse(cv.Declared, msg.Value.Text, cv.Items)
		if err != nil {
			return driver.Event{}, fmt.Errorf("%w: value %d: %w", ErrBadEvent, cv.ID, err)
		}
		cv.Value = v
		ev.Value = &cv
		ev.ValueID = cv.ID
	case driver.EventValueRemoved:
		if msg.ValueID == 0 && msg.Value != nil {
			ev.ValueID = msg.Value.ID
		}
	case driver.EventNodeAdded, driver.EventNodeProtocolInfo, driver.EventNodeNaming:
		if msg.Node == nil {
			return driver.Event{}, fmt.Errorf("%w: %s without node", ErrBadEvent, eventType)
		}
	}
	return ev, nil
}

// commandMessage is published on {prefix}/command/{op}. Only the fields an
// operation needs are set.
type commandMessage struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	HomeID     uint32          `json:"home_id,omitempty"`
	NodeID     uint8           `json:"node_id,omitempty"`
	ValueID    uint64          `json:"value_id,omitempty"`
	SceneID    uint8           `json:"scene_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Value      string          `json:"value,omitempty"`
	Name       *string         `json:"name,omitempty"`
	Location   *string         `json:"location,omitempty"`
	Label      string          `json:"label,omitempty"`
	Intensity  uint8           `json:"intensity,omitempty"`
	Secure     bool            `json:"secure,omitempty"`
	IntervalMS int64           `json:"interval_ms,omitempty"`
	Values     []sceneValueMsg `json:"values,omitempty"`
}

type sceneValueMsg struct {
	HomeID  uint32 `json:"home_id"`
	NodeID  uint8  `json:"node_id"`
	ValueID uint64 `json:"value_id"`
	Type    string `json:"type"`
	Value   string `json:"value"`
}

// responseMessage is the daemon's reply on {prefix}/response/{id}.
type responseMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Command operation names.
const (
	opSetValue         = "set_value"
	opSetNodeName      = "set_node_name"
	opSetNodeLocation  = "set_node_location"
	opEnablePoll       = "enable_poll"
	opDisablePoll      = "disable_poll"
	opSetPollInterval  = "set_poll_interval"
	opCreateScene      = "create_scene"
	opRemoveScene      = "remove_scene"
	opAddSceneValue    = "add_scene_value"
	opRemoveSceneValue = "remove_scene_value"
	opActivateScene    = "activate_scene"
	opAddNode          = "add_node"
	opRemoveNode       = "remove_node"
	opCancelController = "cancel_controller_command"
	opResetController  = "reset_controller"
	opWriteConfig      = "write_config"
)
