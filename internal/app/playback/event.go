package playback

// EventType represents a store change type.
type EventType int

const (
	EventEpisodeChanged EventType = iota // A new episode was selected
	EventPlayingChanged                  // isPlaying flipped
	EventModeChanged                     // Loop or shuffle flag flipped
	EventCleared                         // Player state was cleared
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEpisodeChanged:
		return "episode_changed"
	case EventPlayingChanged:
		return "playing_changed"
	case EventModeChanged:
		return "mode_changed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event represents a store change.
type Event struct {
	Type  EventType
	State State // Snapshot after the change
}
