package playback

import (
	"math/rand/v2"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/podcastr/internal/domain/episode"
)

// Errors
var (
	ErrNoEpisode       = errors.New("no episode selected")
	ErrNoNext          = errors.New("no next episode")
	ErrNoPrevious      = errors.New("no previous episode")
	ErrIndexOutOfRange = errors.New("episode index out of range")
	ErrEmptyList       = errors.New("episode list is empty")
)

// Config holds store configuration.
type Config struct {
	EventBuffer int            // Per-subscriber event channel capacity
	RandomIndex func(n int) int // Picks the next index while shuffling; defaults to rand.IntN
}

// Store owns the declarative playback state: which episode is selected
// and in what mode. Every mutation is published to subscribers.
type Store struct {
	mu sync.RWMutex

	episodes     []episode.Episode
	currentIndex int
	isPlaying    bool
	isLooping    bool
	isShuffling  bool
	selection    uint64

	config Config

	subscribers map[int]chan Event
	nextSubID   int
	closed      bool
}

// NewStore creates an empty playback store.
func NewStore(config Config) *Store {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if config.RandomIndex == nil {
		config.RandomIndex = rand.IntN
	}
	return &Store{
		episodes:    make([]episode.Episode, 0),
		config:      config,
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe returns a channel receiving every subsequent change and a
// cancel func that releases it.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, s.config.EventBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(c)
			}
		})
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Play selects a single episode as the whole list and starts playing it.
func (s *Store) Play(ep episode.Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes = []episode.Episode{ep}
	s.selectLocked(0)
	s.isPlaying = true
	s.publishLocked(EventEpisodeChanged)
}

// PlayList replaces the list and starts playing the episode at index.
func (s *Store) PlayList(list []episode.Episode, index int) error {
	if len(list) == 0 {
		return ErrEmptyList
	}
	if index < 0 || index >= len(list) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d of %d", index, len(list))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes = make([]episode.Episode, len(list))
	copy(s.episodes, list)
	s.selectLocked(index)
	s.isPlaying = true
	s.publishLocked(EventEpisodeChanged)
	return nil
}

// TogglePlay flips the playing flag.
func (s *Store) TogglePlay() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasEpisodeLocked() {
		return ErrNoEpisode
	}
	s.isPlaying = !s.isPlaying
	s.publishLocked(EventPlayingChanged)
	return nil
}

// ToggleLoop flips the loop flag.
func (s *Store) ToggleLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isLooping = !s.isLooping
	s.publishLocked(EventModeChanged)
}

// ToggleShuffle flips the shuffle flag.
func (s *Store) ToggleShuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isShuffling = !s.isShuffling
	s.publishLocked(EventModeChanged)
}

// SetPlayingState sets the playing flag. Unchanged values publish nothing.
func (s *Store) SetPlayingState(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isPlaying == playing {
		return
	}
	s.isPlaying = playing
	s.publishLocked(EventPlayingChanged)
}

// PlayNext advances to the next episode, or to a random one while shuffling.
func (s *Store) PlayNext() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.episodes) == 0 {
		return ErrNoEpisode
	}

	switch {
	case s.isShuffling:
		next := s.config.RandomIndex(len(s.episodes))
		s.selectLocked(next)
	case s.currentIndex+1 < len(s.episodes):
		s.selectLocked(s.currentIndex + 1)
	default:
		return ErrNoNext
	}

	s.publishLocked(EventEpisodeChanged)
	return nil
}

// PlayPrevious goes back to the previous episode.
func (s *Store) PlayPrevious() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentIndex <= 0 {
		return ErrNoPrevious
	}
	s.selectLocked(s.currentIndex - 1)
	s.publishLocked(EventEpisodeChanged)
	return nil
}

// ClearPlayerState empties the list, leaving no episode selected.
func (s *Store) ClearPlayerState() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes = make([]episode.Episode, 0)
	s.currentIndex = 0
	s.isPlaying = false
	s.selection++
	s.publishLocked(EventCleared)
}

// Close releases all subscriber channels.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Store) selectLocked(index int) {
	s.currentIndex = index
	s.selection++
}

func (s *Store) hasEpisodeLocked() bool {
	return s.currentIndex >= 0 && s.currentIndex < len(s.episodes)
}

func (s *Store) snapshotLocked() State {
	// episodes is never mutated in place, so sharing the backing array is safe.
	return State{
		Episodes:     s.episodes,
		CurrentIndex: s.currentIndex,
		IsPlaying:    s.isPlaying,
		IsLooping:    s.isLooping,
		IsShuffling:  s.isShuffling,
		Selection:    s.selection,
	}
}

// publishLocked sends an event to every subscriber without blocking.
// Must be called with lock held.
func (s *Store) publishLocked(t EventType) {
	e := Event{Type: t, State: s.snapshotLocked()}
	for id, ch := range s.subscribers {
		select {
		case ch <- e:
			continue
		default:
		}
		// Buffer full: drop the oldest event so the latest state always
		// reaches the subscriber.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
			zlog.Warn().Msgf("playback: subscriber buffer full, dropped oldest event: subscriber=%d type=%s", id, t)
		default:
			zlog.Warn().Msgf("playback: subscriber buffer full, dropping event: subscriber=%d type=%s", id, t)
		}
	}
}
