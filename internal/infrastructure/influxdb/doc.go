// Package influxdb records Z-Wave value telemetry in InfluxDB v2.
//
// Every numeric value change the gateway applies (temperatures, setpoints,
// meter readings, dimmer levels) becomes one point in the zwave_value
// measurement, tagged by network, node and value label. Controller
// inclusion/exclusion progress goes to zwave_controller.
//
// Telemetry is optional: Connect returns ErrDisabled when influxdb.enabled
// is false and the gateway runs without it.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err == nil {
//	    defer client.Close()
//	    gw.SetTelemetry(client)
//	}
package influxdb
