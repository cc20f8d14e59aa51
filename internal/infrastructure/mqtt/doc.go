// Package mqtt provides the MQTT connection of the W215 bridge.
//
// The bridge publishes accepted state changes and its own health to the
// Gray Logic broker, and listens for on-demand poll requests.
//
// Topic layout:
//
//	graylogic/state/w215/{feature_external_id}   retained state change
//	graylogic/health/w215                        retained bridge health
//	graylogic/command/w215/{device_id}           poll request (subscribed)
//	graylogic/system/w215/status                 online/offline with LWT
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Last Will and Testament for offline detection
//   - Publishing with QoS and payload size checks
//   - Subscriptions restored after reconnect
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish(mqtt.Topics{}.State("w215:192.168.1.20:power"), payload, 1, true)
package mqtt
