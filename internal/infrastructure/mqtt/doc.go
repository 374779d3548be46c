// Package mqtt provides the broker connection ptcontrol uses to receive
// sensor traffic and to announce actuator state and alerts.
//
// The client handles:
//   - connection with auto-reconnect and subscription restore
//   - publishing with QoS and payload-size checks
//   - wildcard subscriptions with panic containment per message
//   - a retained presence message and matching last will
//
// # Topics
//
//	sensors/<channel>/data        raw decimal reading, e.g. "7.35"
//	sensors/<channel>/status      "ONLINE" or "OFFLINE"
//	actuators/<name>/state        retained JSON actuator event
//	ptcontrol/alerts              JSON alert
//	ptcontrol/system/status       retained presence, also the last will
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorData(), 1, ingestor.HandleMessage)
//
// Delivery preserves arrival order, so handlers run one at a time.
package mqtt
