// Package mqtt connects satlinkd to an MQTT broker.
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after a reconnect, panic recovery in handlers and a
// retained status topic with a Last Will so consumers can tell a crash
// from a clean shutdown.
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1, handler)
//
// TLS is enabled with mqtt.broker.tls and requires TLS 1.2 or later.
package mqtt
