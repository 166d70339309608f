// Package playback provides the playback state store shared by the player and its controls.
package playback

import "github.com/osa030/podcastr/internal/domain/episode"

// Status represents the coarse playback status.
type Status int

const (
	StatusIdle    Status = iota // No episode selected
	StatusPlaying               // Episode is playing
	StatusPaused                // Episode is paused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the playback store.
type State struct {
	Episodes     []episode.Episode
	CurrentIndex int
	IsPlaying    bool
	IsLooping    bool
	IsShuffling  bool

	// Selection increments every time an episode is selected, so that
	// re-selecting the same index is still observed as a new episode.
	Selection uint64
}

// Current returns the selected episode.
func (s State) Current() (*episode.Episode, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Episodes) {
		return nil, false
	}
	ep := s.Episodes[s.CurrentIndex]
	return &ep, true
}

// HasPrevious reports whether a previous episode can be played.
func (s State) HasPrevious() bool {
	return s.CurrentIndex > 0
}

// HasNext reports whether a next episode can be played.
// While shuffling there is always a next episode.
func (s State) HasNext() bool {
	return s.IsShuffling || s.CurrentIndex+1 < len(s.Episodes)
}

// Status returns the coarse playback status.
func (s State) Status() Status {
	if _, ok := s.Current(); !ok {
		return StatusIdle
	}
	if s.IsPlaying {
		return StatusPlaying
	}
	return StatusPaused
}
