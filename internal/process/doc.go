// Package process supervises the Z-Wave driver daemon when the gateway is
// configured to run it.
//
// The daemon owns the USB controller and talks to the gateway over MQTT.
// When driver.daemon.managed is set, the gateway starts it, forwards its
// output to the log and restarts it with exponential back-off if it dies.
// A run that lasted longer than the stable threshold resets the back-off.
// An exit with EX_CONFIG (78) means the daemon cannot start with its
// current configuration and is not retried.
//
//	sup := process.New(process.FromDaemonConfig(cfg.Driver.Daemon))
//	sup.SetLogger(log)
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
