// Package call implements the call session controller.
//
// A Controller is the single owner of "which call, if any, is active" and of
// the local media devices. It wires the invite package (outbound ringing
// over point-to-point connections) to the room package (the mesh session
// once a call is up) and publishes the state a UI needs as observable
// Signals.
//
// Basic usage:
//
//	c, err := call.New(call.Options{
//	    Identity:  "did:key:alice",
//	    Endpoints: network,
//	    Mesh:      network.NewMesh(),
//	    Devices:   av.NewStaticDevices(),
//	    Messages:  outbox,
//	    Config:    config.Default(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.Listen(ctx, false); err != nil {
//	    log.Fatal(err)
//	}
//	c.PrepareCall([]string{"did:key:bob"}, "chat-1", false)
//	if err := c.StartCall(ctx, true); err != nil {
//	    log.Fatal(err)
//	}
//
// Device toggles arrive through DeviceSignals. Setting Muted, CameraEnabled,
// or Deafened updates the local tracks and announces the new state to the
// room. Mute and deafen are tracked separately; the microphone is live only
// when neither is set.
//
// The controller never holds its lock while publishing a signal, sending a
// system message, or calling into the room, so subscribers may call back
// into it.
package call
