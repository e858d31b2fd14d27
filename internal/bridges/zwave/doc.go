// Package zwave implements driver.Driver over MQTT for a Z-Wave daemon.
//
// The daemon owns the USB controller and speaks the radio protocol. This
// package only translates: driver calls become JSON commands, daemon
// notifications become driver.Event values.
//
//	Gateway ──driver.Driver──► Bridge ──{prefix}/command/{op}──► daemon
//	Gateway ◄──Events()─────── Bridge ◄──{prefix}/event/{type}── daemon
//
// Values travel as text alongside their declared type and are parsed with
// device.Parse, so a malformed notification is rejected at the edge rather
// than inside the gateway.
//
// Node names, locations and the scene table persist in SQLite (Store)
// because the daemon does not keep them.
package zwave
