// Package control runs the threshold control loop.
//
// An Engine owns a LiveState mirror of the latest sensor values and actuator
// flags. Readings arrive through Observe; every tick the engine walks its
// quantities in declared order and applies these rules, first match wins:
//
//  1. no reading yet: do nothing
//  2. min <= v <= max: disengage whichever actuator is engaged
//  3. v > max, high actuator off: engage it, disengage the low one
//  4. v < min, low actuator off: engage it, disengage the high one
//  5. v > max, high actuator already on: raise an alert
//  6. v < min, low actuator already on: raise an alert
//
// State changes apply to the mirror immediately. Persistence and
// notifications run in the background through a per-key ordered queue, so a
// slow or failing store never stalls a tick and never reverts the mirror.
//
// Usage:
//
//	eng := control.NewEngine(control.Config{
//	    Interval:   10 * time.Second,
//	    Quantities: control.DefaultQuantities(),
//	}, control.Deps{Store: store, Alerts: buf, Logger: log})
//	go eng.Run(ctx)
//	eng.Observe(entity.KeyPressure, 9.0)
package control
