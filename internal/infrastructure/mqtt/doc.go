// Package mqtt connects the bridge to its broker.
//
// The broker links the bridge with the Broadlink gateway daemon that owns
// the radios and with whatever publishes sensor readings on free-form
// topics:
//
//	irbridge <-> broker <-> gateway daemon
//	                    <-> sensor publishers
//
// Client wraps paho with auto-reconnect, a retained online/offline status on
// {prefix}/system/status (the offline copy is the broker-held will) and
// subscriptions that are replayed after every reconnect. Bus fans a single
// broker subscription out to every accessory listening on that topic.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	t := client.Topics()
//	err = client.Subscribe(t.AllGatewayStates(), 1, func(topic string, payload []byte) error {
//	    mac := mqtt.LastSegment(topic)
//	    ...
//	})
//	err = client.Publish(t.GatewayCommand(mac), payload, 1, false)
package mqtt
