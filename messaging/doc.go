// Package messaging is the call engine's boundary to the conversation
// backend.
//
// The engine posts three kinds of system messages into a conversation: a
// call started, a call ended with its duration, and a missed call. It does
// so through the Sender interface; the host supplies the real backend.
//
// Formatter turns call events into message lines. DefaultFormatter produces
// English text; hosts that localize plug in their own.
//
// Outbox is an in-memory Sender that records each message with a delivery
// state. It can forward to another Sender, which makes it useful both as a
// test double and as an audit log in front of a real backend.
//
//	outbox := messaging.NewOutbox(nil)
//	_ = outbox.Send(ctx, "chat-1", []string{"Missed call"}, nil)
//	for _, msg := range outbox.ForChannel("chat-1") {
//	    fmt.Println(msg.Lines)
//	}
package messaging
