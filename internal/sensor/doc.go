// Package sensor defines the uniform capability every environmental sensor
// driver provides, and the registry used to build the configured sensor set.
//
// A driver is initialised when it is opened: Open performs reset, mode
// configuration and identity checks, and any failure there is fatal to the
// daemon. After that, Measure never fails. Transaction errors are logged and
// the sensor simply contributes no measurements to that cycle.
//
// Drivers live in sub-packages (scd4x, bme280, tsl2591) and register a
// Factory under their kind name:
//
//	reg := sensor.NewRegistry()
//	reg.Register(scd4x.Kind, scd4x.Factory)
//	sensors, err := reg.OpenAll(ctx, env, cfg.Sensors)
package sensor
