// Package relay checks which mesh relays accept websocket connections.
//
// Probing is optional and off by default. When enabled, the call controller
// filters its configured relay list through Prober.Probe before joining a
// mesh room, keeping the configured order.
package relay
