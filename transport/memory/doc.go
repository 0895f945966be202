// Package memory is an in-process implementation of the transport
// interfaces.
//
// A Network hosts any number of endpoints and mesh rooms. Delivery is
// asynchronous and unbounded: every connection and room member has its own
// queue drained by a goroutine, so a slow consumer never blocks the sender.
//
// Published streams are mirrored per receiving peer. Each receiver gets its
// own Track objects fed from the sender's tracks, so a receiver disabling an
// inbound track (for example while deafened) does not touch the sender's
// microphone.
//
//	network := memory.NewNetwork()
//	alice, _ := network.NewEndpoint(ctx, "alice")
//	bob, _ := network.NewEndpoint(ctx, "bob")
//	conn, _ := alice.Connect(ctx, "bob", transport.Metadata{Channel: "chat-1"})
//	inbound := <-bob.Incoming()
//	_ = inbound.Send(transport.AckToken)
package memory
