// Package config loads the service settings from config.yaml.
//
// Only service plumbing lives here: broker, API, stores, logging and the
// gateway daemon. Accessory definitions stay in the legacy accessories file
// named by bridge.accessories_file and are parsed by the appliance package.
//
// Secrets (MQTT and redis passwords, the InfluxDB token, the API signing
// key) are best supplied as IRBRIDGE_* environment variables. An empty
// security.jwt.secret turns API authentication off.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	file, err := appliance.LoadFile(cfg.Bridge.AccessoriesFile)
package config
