// Package daemon supervises the Broadlink gateway daemon as a child process.
//
// The gateway daemon owns the radios and speaks the bridge's MQTT gateway
// protocol. Most installations run it as its own service; when
// bridge.daemon.managed is set the bridge starts it, restarts it with
// exponential backoff when it exits, and kills it when the liveness check
// keeps failing (no gateway device has sent a heartbeat).
//
// Example usage:
//
//	sup, err := daemon.New(daemon.Config{
//	    Binary:       "/usr/local/bin/broadlink-gateway",
//	    Args:         []string{"--mqtt", "localhost:1883"},
//	    RestartDelay: 5 * time.Second,
//	    Liveness:     gateway.Alive,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package daemon
