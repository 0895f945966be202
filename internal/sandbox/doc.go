// Package sandbox hosts call controllers on a simulated network and exposes
// them over HTTP.
//
// Every node is a full call.Controller wired to a shared memory.Network, a
// private messaging.Outbox and static capture devices. The HTTP surface lets
// a developer drive calls between nodes by hand and inspect the published
// signals:
//
//	POST   /nodes                          add a node
//	GET    /nodes                          list node identities
//	GET    /nodes/{id}                     node status
//	DELETE /nodes/{id}                     remove a node
//	POST   /nodes/{id}/calls               prepare and start a call
//	POST   /nodes/{id}/calls/accept        accept the pending call
//	POST   /nodes/{id}/calls/invite        ring more recipients
//	DELETE /nodes/{id}/calls               leave the call
//	PUT    /nodes/{id}/devices/{device}    set muted, camera, deafened or screen
//	POST   /nodes/{id}/audio               play Opus packets into the microphone
//
// Nodes re-listen for inbound calls whenever their active call ends.
package sandbox
