// Package broadlink implements the hardware transport over MQTT.
//
// The radios are owned by an external Broadlink gateway daemon. The bridge
// talks to it through four topic families, one device per MAC address:
//
//	{prefix}/command/broadlink/{mac}   codes to transmit (bridge → daemon)
//	{prefix}/request/broadlink/{mac}   sensor queries (bridge → daemon)
//	{prefix}/state/broadlink/{mac}     sensor readings (daemon → bridge)
//	{prefix}/health/broadlink/{mac}    online/offline heartbeat (daemon → bridge)
//
// A device is active while heartbeats keep arriving. When none arrived for
// the configured health timeout the watchdog marks it inactive, which makes
// accessory sensor polls fall back to their cached values.
//
// Hosts come from the accessories file. An accessory names its host by
// address or MAC; an empty host selects the first configured device.
//
// # Usage
//
//	gw, err := broadlink.NewGateway(broadlink.Options{
//	    MQTT:          client,
//	    Topics:        client.Topics(),
//	    Hosts:         file.Hosts,
//	    HealthTimeout: cfg.GetHealthTimeout(),
//	    Logger:        log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
//	defer gw.Stop()
package broadlink
