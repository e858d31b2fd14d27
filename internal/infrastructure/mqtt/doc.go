// Package mqtt connects the gateway to the MQTT broker that fronts the
// Z-Wave driver daemon.
//
// The daemon owns the USB controller. The gateway never speaks to it
// directly: it publishes driver requests on command topics and consumes
// notifications from event topics. This package provides the connection,
// topic naming and status bookkeeping; the request/notification codec lives
// in bridges/zwave.
//
//	Gateway ↔ MQTT Broker ↔ Z-Wave driver daemon
//
// # Topics
//
// See Topics for the hierarchy. The gateway status topic is retained and
// doubles as the Last Will, so other services can tell a crash from a clean
// stop.
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.Driver.TopicPrefix}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return decode(topic, payload)
//	    })
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on the loopback
//   - Credentials are checked by the broker ACL
package mqtt
