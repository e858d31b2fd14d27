// Package gateway is the command and notification engine of the Z-Wave
// gateway.
//
// A Gateway owns the device registry, the room and scene lists, the
// wake-up interval cache and the alarm scheduler. It consumes driver events
// on one goroutine (the reconciler) and executes protocol commands for every
// transport through Dispatch.
//
// # Architecture
//
//	 TCP line socket      WebSocket
//	        │                 │
//	        └──────┬──────────┘
//	               ▼
//	      Dispatch (dispatcher.go) ──► commands.go / options.go
//	               │
//	               ▼
//	  ┌─────────────────────────────────────────────┐
//	  │ Gateway (core.go), one mutex                │
//	  │  device.Registry  automation.Rooms/Scenes   │
//	  │  WakeupCache      alarm.Scheduler           │
//	  └─────────────────────────────────────────────┘
//	               ▲                    │
//	  HandleEvent (reconciler.go)       │ fired alarms (alarms.go)
//	               ▲                    ▼
//	        driver.Events()      Broadcaster / driver.Driver
//
// # Protocol
//
// A command is one line of "~"-separated tokens. SETNODE options are
// separated by "<>" and written as name=value. Responses render as JSON for
// WebSocket clients and as "~"/"#"-separated text for line clients.
//
//	ALIST
//	SETNODE~5~Name=Hall light<>Switch=255
//	ROOM~PLUS~Kitchen
//	SCENE~ADD~Evening~5~40
//
// # Startup
//
//	g := gateway.New(drv, opts)
//	go g.Run(ctx)
//	if err := g.WaitReady(ctx); err != nil {
//	    return err
//	}
//	if err := g.Snapshot(ctx); err != nil {
//	    return err
//	}
//	// start listeners
package gateway
