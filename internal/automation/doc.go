// Package automation holds the room and scene lists of the gateway.
//
// Both lists are derived caches. Rooms are rebuilt from device locations
// and thermostat values held by the device registry; scenes mirror the
// driver's own scene table. Neither holds an independent source of truth.
//
// # Key Types
//
//   - Room: devices sharing a location string, with the room setpoint and
//     ambient temperature
//   - Scene: a cached entry of the driver scene table plus an Active flag
//     for display
//
// # Thread Safety
//
// Rooms and Scenes are safe for concurrent use. Read-modify-write sequences
// that span the device registry must be serialised by the caller.
//
// # Usage
//
//	rooms := automation.NewRooms()
//	rooms.Rebuild(registry.List())
//
//	room, err := rooms.Adjust("Kitchen", automation.SetpointStep)
//
//	scenes := automation.NewScenes()
//	if err := scenes.Rebuild(ctx, drv); err != nil {
//	    return err
//	}
//	_, err = scenes.Activate(ctx, drv, "Morning")
package automation
