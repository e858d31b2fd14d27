// Package driver defines the boundary between the gateway and the
// mesh-network driver SDK.
//
// The gateway never talks to the physical network. It issues requests
// through the Driver interface and learns about the network from the Event
// stream. Implementations live elsewhere: bridges/zwave speaks to a
// Z-Wave daemon over MQTT, drivertest provides an in-memory fake.
package driver
