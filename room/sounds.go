package room

// Sound names a room sound effect.
type Sound string

const (
	// SoundJoined plays when a peer joins.
	SoundJoined Sound = "joined"
	// SoundDisconnect plays when a peer leaves.
	SoundDisconnect Sound = "disconnect"
)

// SoundPlayer plays room sound effects. Play must not block.
type SoundPlayer interface {
	Play(Sound)
}

// NoSounds discards every sound.
type NoSounds struct{}

// Play does nothing.
func (NoSounds) Play(Sound) {}
