// Package session provides the session manager.
package session

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/podcastr/internal/app/header"
	"github.com/osa030/podcastr/internal/app/notification"
	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/app/player"
	"github.com/osa030/podcastr/internal/domain/episode"
	"github.com/osa030/podcastr/internal/infra/config"
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrEpisodeNotFound   = errors.New("episode not found")
)

// Catalog provides the episode list.
type Catalog interface {
	Episodes(ctx context.Context) ([]episode.Episode, error)
}

// Manager manages the listening session: the episode catalog, the playback
// store, the player and notification fan-out.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	catalog      Catalog
	store        *playback.Store
	player       *player.Player
	header       *header.Header
	notification *notification.Manager

	episodes []episode.Episode
	running  bool

	// Latest view waiting to be broadcast
	pendingMu sync.Mutex
	pending   *player.View
	wake      chan struct{}

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewManager creates a new session manager driving handle.
func NewManager(cfg *config.Config, catalog Catalog, handle player.Handle) (*Manager, error) {
	hdr, err := header.New(header.Config{
		Locale:     cfg.Header.Locale,
		DateLayout: cfg.Header.DateLayout,
		Tagline:    cfg.Header.Tagline,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create header")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		catalog:      catalog,
		store:        playback.NewStore(playback.Config{EventBuffer: cfg.Player.EventBuffer}),
		header:       hdr,
		notification: notification.NewManager(),
		episodes:     make([]episode.Episode, 0),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	m.player = player.New(m.store, handle, player.Config{OnChange: m.onViewChange})

	return m, nil
}

// Start loads the catalog and starts the player and the broadcaster.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	episodes, err := m.catalog.Episodes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load catalog")
	}
	m.episodes = episodes

	if err := m.player.Start(); err != nil {
		return errors.Wrap(err, "failed to start player")
	}

	go m.broadcastLoop()
	m.running = true

	zlog.Info().Msgf("session started: episodes=%d", len(episodes))
	return nil
}

// Done returns a channel closed once the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Episodes returns the loaded episode list.
func (m *Manager) Episodes() []episode.Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.episodes)
}

// Episode returns the episode with the given ID.
func (m *Manager) Episode(id string) (episode.Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ep := range m.episodes {
		if ep.ID == id {
			return ep, nil
		}
	}
	return episode.Episode{}, errors.Wrapf(ErrEpisodeNotFound, "id %s", id)
}

// PlayEpisode plays a single episode as the whole list.
func (m *Manager) PlayEpisode(id string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	ep, err := m.Episode(id)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("session: play episode: id=%s", id)
	m.store.Play(ep)
	return nil
}

// PlayFrom plays the whole catalog starting at index.
func (m *Manager) PlayFrom(index int) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	episodes := m.Episodes()
	zlog.Info().Msgf("session: play list: index=%d total=%d", index, len(episodes))
	return m.store.PlayList(episodes, index)
}

// TogglePlay flips play/pause.
func (m *Manager) TogglePlay() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.store.TogglePlay()
}

// ToggleLoop flips the loop mode.
func (m *Manager) ToggleLoop() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	m.store.ToggleLoop()
	return nil
}

// ToggleShuffle flips the shuffle mode.
func (m *Manager) ToggleShuffle() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	m.store.ToggleShuffle()
	return nil
}

// PlayNext moves to the next episode.
func (m *Manager) PlayNext() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.store.PlayNext()
}

// PlayPrevious moves to the previous episode.
func (m *Manager) PlayPrevious() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	return m.store.PlayPrevious()
}

// Clear empties the player.
func (m *Manager) Clear() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	m.store.ClearPlayerState()
	return nil
}

// Seek moves playback of the current episode and returns the applied position.
func (m *Manager) Seek(seconds int) (int, error) {
	if err := m.checkRunning(); err != nil {
		return 0, err
	}
	return m.player.Seek(seconds)
}

// View returns the current player view.
func (m *Manager) View() player.View {
	return m.player.View()
}

// Status returns the playback status.
func (m *Manager) Status() playback.Status {
	return m.store.Snapshot().Status()
}

// Header renders the page header for the current time.
func (m *Manager) Header() header.View {
	return m.header.Render(time.Now())
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// StateMessage returns the current player view as a notification message.
func (m *Manager) StateMessage() (*structpb.Struct, error) {
	return ViewMessage(m.View())
}

// ViewMessage converts a player view into a notification message.
func ViewMessage(v player.View) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal view")
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal view")
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build message")
	}
	return msg, nil
}

// Close stops the player and releases every subscription.
func (m *Manager) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()

		m.player.Close()
		m.store.Close()
		m.cancel()
		m.notification.Close()
		close(m.done)
		zlog.Info().Msg("session closed")
	})
}

func (m *Manager) checkRunning() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return ErrSessionNotRunning
	}
	return nil
}

// onViewChange records the latest view for the broadcaster.
// It runs on player goroutines and must not block.
func (m *Manager) onViewChange(v player.View) {
	m.pendingMu.Lock()
	m.pending = &v
	m.pendingMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// broadcastLoop broadcasts the latest view after every change. Views that
// arrive while a broadcast is in flight are coalesced.
func (m *Manager) broadcastLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}

		m.pendingMu.Lock()
		v := m.pending
		m.pending = nil
		m.pendingMu.Unlock()
		if v == nil {
			continue
		}

		msg, err := ViewMessage(*v)
		if err != nil {
			zlog.Error().Msgf("failed to build state notification: %v", err)
			continue
		}
		if err := m.notification.Broadcast(msg); err != nil {
			zlog.Error().Msgf("failed to broadcast state: %v", err)
		}
	}
}
