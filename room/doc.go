// Package room keeps the participants of a joined mesh session in sync.
//
// A Room wraps one transport.MeshRoom. A single goroutine consumes the mesh
// events in order; public methods may be called from any goroutine. Two
// action channels run on the mesh:
//
//   - "did_sync" binds a mesh peer id to a call-level identity. Every peer
//     sends its identity to each newcomer.
//   - "messages" carries presence updates (PresenceMessage) announcing a
//     participant's media flags.
//
// Presence and streams may arrive before the identity they belong to. Both
// are held until the identity-sync arrives and then applied, so the final
// participant state does not depend on arrival order.
//
// The Registry owns per-participant streams and their audio pipelines and
// mirrors every change into a Sink for the rendering layer. A participant
// has a pipeline exactly when it has a stream.
//
// When the last remote peer leaves, the OnEmpty callback runs once on its
// own goroutine so the owner can tear the call down.
package room
