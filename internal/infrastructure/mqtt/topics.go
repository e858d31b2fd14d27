package mqtt

import "fmt"

// DefaultTopicPrefix is the root of all Z-Wave gateway topics.
const DefaultTopicPrefix = "graylogic/zwave"

// Topics builds the topic hierarchy shared by the gateway and the Z-Wave
// driver daemon. Every topic lives under Prefix:
//
//	{prefix}/event/{type}         driver -> gateway notifications
//	{prefix}/command/{op}         gateway -> driver requests
//	{prefix}/response/{request}   driver -> gateway replies to requests
//	{prefix}/status               gateway online/offline (retained, LWT)
//	{prefix}/driver/status        driver daemon online/offline (retained)
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Event returns the topic a driver notification of the given type is
// published on.
//
// Example: graylogic/zwave/event/value_changed
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), eventType)
}

// Command returns the topic for a driver operation.
//
// Example: graylogic/zwave/command/set_value
func (t Topics) Command(op string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), op)
}

// Response returns the topic the driver answers a request on.
//
// Example: graylogic/zwave/response/6f1c...
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", t.prefix(), requestID)
}

// Status returns the gateway status topic. It carries the LWT.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// DriverStatus returns the status topic of the driver daemon.
func (t Topics) DriverStatus() string {
	return fmt.Sprintf("%s/driver/status", t.prefix())
}

// AllEvents matches every driver notification.
//
// Pattern: graylogic/zwave/event/#
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/#", t.prefix())
}

// AllResponses matches every request reply.
//
// Pattern: graylogic/zwave/response/+
func (t Topics) AllResponses() string {
	return fmt.Sprintf("%s/response/+", t.prefix())
}

// AllCommands matches every driver request. The driver daemon subscribes
// to this.
//
// Pattern: graylogic/zwave/command/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", t.prefix())
}
