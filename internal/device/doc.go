// Package device provides the in-memory Device Registry for the gateway.
//
// The registry is the single owner of node and capability-value lifetime.
// Rooms, scenes and the wake-up cache are derived from it and can be
// rebuilt from it at any time.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                       Device Registry                        │
//	│                                                              │
//	│  ┌──────────────────┐   ┌──────────────┐   ┌──────────────┐  │
//	│  │     Registry     │   │    Value     │   │    Mapper    │  │
//	│  │  (registry.go)   │   │  (value.go)  │   │ (mapper.go)  │  │
//	│  │                  │   │              │   │              │  │
//	│  │ • node add/remove│   │ • sum type   │   │ • class table│  │
//	│  │ • value upsert   │   │ • text parse │   │ • lazy cache │  │
//	│  └──────────────────┘   └──────────────┘   └──────────────┘  │
//	└──────────────────────────────────────────────────────────────┘
//	           ▲                                  │
//	           │ driver events                    ▼
//	   NotificationReconciler            CommandDispatcher
//
// # Key Types
//
//   - Device: one node, keyed by (HomeID, NodeID)
//   - CapabilityValue: one property of a node, keyed by a driver value id
//   - Value: Bool | Byte | Short | Int | Decimal | List
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//
//	reg.Upsert(homeID, 5)
//	_ = reg.AddOrReplaceValue(homeID, 5, device.CapabilityValue{
//	    ID: 0x1234, Class: device.ClassSwitchBinary, Label: "Switch",
//	    Declared: device.TypeBool, Value: device.Bool(false),
//	})
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Sequences that read a
// device and then write to it must be serialised by the caller.
package device
