// Package main runs the meshcall sandbox server.
//
// # Overview
//
// The sandbox hosts any number of call controllers on an in-process
// simulated network and exposes them over HTTP, so calls can be placed,
// answered and inspected without browsers, relays or capture hardware.
//
// # Usage
//
// Run with default settings (environment first, flags override):
//
//	go run ./cmd/meshcall
//
// Pre-create two nodes and log as JSON:
//
//	go run ./cmd/meshcall -nodes did:key:alice,did:key:bob -log-format json
//
// Then drive a call:
//
//	curl -X POST localhost:8080/nodes/did:key:alice/calls \
//	    -d '{"channel":"general","recipients":["did:key:bob"]}'
//	curl -X POST localhost:8080/nodes/did:key:bob/calls/accept
//	curl localhost:8080/nodes/did:key:alice
//
// # Configuration
//
// Every MESHCALL_* variable understood by the config package applies.
// Flags:
//   - -addr: HTTP listen address (MESHCALL_HTTP_ADDR)
//   - -log-level: logrus level (MESHCALL_LOG_LEVEL)
//   - -log-format: text or json (MESHCALL_LOG_FORMAT)
//   - -nodes: comma-separated identities created at startup
//   - -shutdown-timeout: grace period for in-flight requests
package main
