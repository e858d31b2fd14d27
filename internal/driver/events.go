package driver

import "github.com/nerrad567/gray-logic-zwave/internal/device"

// EventType discriminates driver notifications.
type EventType string

// Driver notification types.
const (
	EventValueAdded              EventType = "value_added"
	EventValueRemoved            EventType = "value_removed"
	EventValueChanged            EventType = "value_changed"
	EventValueRefreshed          EventType = "value_refreshed"
	EventGroup                   EventType = "group"
	EventNodeNew                 EventType = "node_new"
	EventNodeAdded               EventType = "node_added"
	EventNodeRemoved             EventType = "node_removed"
	EventNodeProtocolInfo        EventType = "node_protocol_info"
	EventNodeNaming              EventType = "node_naming"
	EventNodeEvent               EventType = "node_event"
	EventPollingEnabled          EventType = "polling_enabled"
	EventPollingDisabled         EventType = "polling_disabled"
	EventDriverReady             EventType = "driver_ready"
	EventDriverFailed            EventType = "driver_failed"
	EventDriverReset             EventType = "driver_reset"
	EventAwakeNodesQueried       EventType = "awake_nodes_queried"
	EventAllNodesQueried         EventType = "all_nodes_queried"
	EventAllNodesQueriedSomeDead EventType = "all_nodes_queried_some_dead"
	EventNodeQueriesComplete     EventType = "node_queries_complete"
	EventControllerCommand       EventType = "controller_command"
)

// Event is one notification from the driver. Which optional fields are set
// depends on Type:
//
//   - Value events carry Value (ValueRemoved carries only ValueID).
//   - NodeAdded, NodeProtocolInfo and NodeNaming carry Node.
//   - ControllerCommand carries ControllerState.
//   - NodeEvent carries EventData.
type Event struct {
	Type            EventType               `json:"type"`
	HomeID          uint32                  `json:"home_id"`
	NodeID          uint8                   `json:"node_id"`
	ValueID         uint64                  `json:"value_id,omitempty"`
	Value           *device.CapabilityValue `json:"value,omitempty"`
	Node            *device.NodeInfo        `json:"node,omitempty"`
	ControllerState ControllerState         `json:"controller_state,omitempty"`
	EventData       uint8                   `json:"event_data,omitempty"`
}

// ReleasesStartup reports whether the event ends the driver's
// initialisation phase.
func (e Event) ReleasesStartup() bool {
	switch e.Type {
	case EventDriverFailed, EventAwakeNodesQueried, EventAllNodesQueried, EventAllNodesQueriedSomeDead:
		return true
	}
	return false
}

// ControllerState is the progress of an inclusion/exclusion command.
type ControllerState int

// Controller command states.
const (
	ControllerNormal ControllerState = iota
	ControllerStarting
	ControllerCancel
	ControllerError
	ControllerWaiting
	ControllerSleeping
	ControllerInProgress
	ControllerCompleted
	ControllerFailed
	ControllerNodeOK
	ControllerNodeFailed
)

var controllerStateText = map[ControllerState]string{
	ControllerNormal:     "Normal - No command in progress",
	ControllerStarting:   "Starting - The command is starting",
	ControllerCancel:     "Cancel - The command was cancelled",
	ControllerError:      "Error - Command invocation had error(s) and was aborted",
	ControllerWaiting:    "Waiting - Controller is waiting for a user action",
	ControllerSleeping:   "Sleeping - Controller command is on a sleep queue wait for device",
	ControllerInProgress: "InProgress - The controller is communicating with the other device to carry out the command",
	ControllerCompleted:  "Completed - The command has completed successfully",
	ControllerFailed:     "Failed - The command has failed",
	ControllerNodeOK:     "NodeOK - Used only with ControllerCommand_HasNodeFailed to indicate that the controller thinks the node is OK",
	ControllerNodeFailed: "NodeFailed - Used only with ControllerCommand_HasNodeFailed to indicate that the controller thinks the node has failed",
}

func (s ControllerState) String() string {
	if text, ok := controllerStateText[s]; ok {
		return text
	}
	return "Unknown"
}
