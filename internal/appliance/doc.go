// Package appliance implements the per-kind state machines that turn
// capability changes (power, mode, temperature, fan speed, swing, lock) into
// signal code transmissions.
//
// Every accessory embeds a base value that owns its transmission pipeline,
// logger and refresh notifier, and exposes its capabilities as named
// characteristics:
//
//	acc.Set(ctx, appliance.CharTargetTemperature, 22.0)
//	v, _ := acc.Get(ctx, appliance.CharCurrentTemperature)
//
// Setters follow a common pattern:
//
//  1. Skip when the value is unchanged and resend suppression is on, unless
//     the device was just powered on.
//  2. Cancel every outstanding transmission and timer of the accessory.
//  3. Resolve the code through package codes and transmit it.
//  4. Update derived state, push refresh notifications and re-arm the
//     automatic on/off timers.
//
// Kinds share behaviour by composition. The power core (switch, fan, air
// purifier, humidifier) provides on/off with ping sync and auto timers; the
// fan controls build on it. Thermostats and heater/coolers own a sensor
// monitor and an auto on/off controller (SensorDriven, AutoOnOffCapable).
//
// Configuration errors are reported by the constructors and stop the
// accessory from being registered. Runtime transport and sensor failures are
// logged and never fail a getter.
package appliance
