// Package transport defines the point-to-point and mesh transports the call
// engine runs on.
//
// Both transports are collaborators: this package only fixes the boundary.
// The in-process implementation in transport/memory backs the tests and the
// sandbox tool; a production host plugs in its own.
//
// # Point-to-point
//
// An Endpoint is the local peer's presence on the signaling network. Dialing
// a peer returns a Connection whose lifecycle is reported on Events:
//
//	conn, err := endpoint.Connect(ctx, transport.PeerID(identity), md)
//	for ev := range conn.Events() {
//	    switch ev.Type {
//	    case transport.ConnOpen:
//	    case transport.ConnData:
//	    case transport.ConnClose:
//	    case transport.ConnError:
//	    }
//	}
//
// The only payload the call engine exchanges on a Connection is AckToken,
// which the callee sends to accept a call.
//
// # Mesh
//
// A Mesh joins rooms in which every peer can broadcast typed action messages
// and publish media streams to the others. Room activity is delivered as
// MeshEvent values on a single channel so the consumer can process them on
// one goroutine.
//
// # Peer identifiers
//
// Call-level identities are decentralized identifiers. The point-to-point
// network addresses peers by the identity with its "did:key:" prefix removed;
// see PeerID.
package transport
