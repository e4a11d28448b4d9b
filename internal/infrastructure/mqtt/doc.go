// Package mqtt provides the MQTT client used to fan gateway events out to
// consumers and to receive remote commands.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// All topics live under a configurable prefix (default "sensorgw"); see
// Topics for the layout.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command on %s: %s", topic, payload)
//	        return nil
//	    })
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Anonymous access is only for local development
package mqtt
