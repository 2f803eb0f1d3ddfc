// Package bridge exposes a local UART to the network as a websocket serial
// bridge, the server side of transport.DialBridge.
//
// One client is served at a time. The UART is opened when the client
// connects and closed when it disconnects, so the port stays free for
// local tools between sessions. A second client gets HTTP 409 until the
// first one leaves.
//
// Every binary websocket message carries raw UART bytes. Text messages
// from clients are ignored.
//
// # Usage
//
//	srv, err := bridge.New(bridge.Config{
//		Host:     "0.0.0.0",
//		Port:     8080,
//		Device:   "/dev/ttyUSB0",
//		BaudRate: 115200,
//	}, logging.Named("bridge"))
//	if err != nil {
//		return err
//	}
//	return srv.Start(ctx)
//
// Remote hosts then flash with:
//
//	cc2538-bd flash --port ws://pi.local:8080/uart firmware.hex
//
// # TLS
//
// Set CertPath and KeyPath to serve wss:// instead. TLS 1.2 is the minimum.
package bridge
