// Package player keeps a playback handle in line with the playback store
// and owns the elapsed-progress counter of the current episode.
package player

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/infra/audio"
)

// Errors
var (
	ErrNotStarted = errors.New("player not started")
	ErrClosed     = errors.New("player is closed")
)

// Handle is the live playback resource driven by the player.
// Notifications must be delivered asynchronously, never from inside a
// Handle method.
type Handle interface {
	Load(src string, duration time.Duration, autoplay bool) error
	Unload()
	Play() error
	Pause() error
	Position() time.Duration
	SetPosition(pos time.Duration) error
	SetLoop(loop bool)
	Playing() bool
	Subscribe(kind audio.Notification, fn func()) func()
}

// Store is the part of the playback store the player depends on.
type Store interface {
	Snapshot() playback.State
	Subscribe() (<-chan playback.Event, func())
	SetPlayingState(playing bool)
	PlayNext() error
	ClearPlayerState()
}

// Config holds player configuration.
type Config struct {
	// OnChange is called with a fresh view after every state or progress
	// change. It runs on the notifying goroutine and must not block or call
	// back into the player.
	OnChange func(View)
}

// Player synchronizes one playback handle with the playback store.
type Player struct {
	mu sync.Mutex

	store  Store
	handle Handle
	config Config

	progress int
	applied  playback.State
	started  bool
	closed   bool

	storeCancel      func()
	handleCancels    []func()
	timeUpdateCancel func()

	done chan struct{}
}

// New creates a player. Call Start to begin synchronizing.
func New(store Store, handle Handle, config Config) *Player {
	return &Player{
		store:  store,
		handle: handle,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start subscribes to the store and the handle and applies the current
// store state before returning.
func (p *Player) Start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true

	events, cancel := p.store.Subscribe()
	p.storeCancel = cancel
	p.handleCancels = []func(){
		p.handle.Subscribe(audio.NotifyLoadedMetadata, p.onLoadedMetadata),
		p.handle.Subscribe(audio.NotifyEnded, p.onEnded),
		p.handle.Subscribe(audio.NotifyPlay, p.onPlay),
		p.handle.Subscribe(audio.NotifyPause, p.onPause),
		p.handle.Subscribe(audio.NotifyError, p.onError),
	}

	p.applyLocked(p.store.Snapshot(), true)
	view := p.viewLocked()
	p.mu.Unlock()
	p.emit(view)

	go p.run(events)
	return nil
}

// run applies store events in arrival order until the subscription closes.
func (p *Player) run(events <-chan playback.Event) {
	defer close(p.done)

	for e := range events {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			continue
		}
		zlog.Debug().Msgf("player: applying store event: type=%s selection=%d playing=%t",
			e.Type, e.State.Selection, e.State.IsPlaying)
		p.applyLocked(e.State, false)
		view := p.viewLocked()
		p.mu.Unlock()
		p.emit(view)
	}
}

// applyLocked pushes declarative state onto the handle.
// Must be called with lock held.
func (p *Player) applyLocked(next playback.State, initial bool) {
	prev := p.applied
	p.applied = next

	if initial || next.IsLooping != prev.IsLooping {
		p.handle.SetLoop(next.IsLooping)
	}

	if initial || next.Selection != prev.Selection {
		p.loadLocked(next)
		return
	}

	if next.IsPlaying != prev.IsPlaying {
		p.syncPlayingLocked(next)
	}
}

// loadLocked swaps the handle to the selected episode. The previous
// time-update subscription is released so stale updates cannot leak into
// the new episode's progress.
func (p *Player) loadLocked(state playback.State) {
	p.releaseTimeUpdateLocked()
	p.progress = 0

	ep, ok := state.Current()
	if !ok {
		p.handle.Unload()
		zlog.Debug().Msg("player: no episode selected, handle unloaded")
		return
	}

	zlog.Info().Msgf("player: loading episode: id=%s title=%q duration=%ds", ep.ID, ep.Title, ep.Duration)
	if err := p.handle.Load(ep.URL, ep.Length(), true); err != nil {
		zlog.Warn().Err(err).Msgf("player: failed to load episode: id=%s", ep.ID)
	}
}

// syncPlayingLocked starts or stops the handle to match isPlaying.
// Must be called with lock held.
func (p *Player) syncPlayingLocked(state playback.State) {
	if _, ok := state.Current(); !ok {
		return
	}

	var err error
	if state.IsPlaying {
		err = p.handle.Play()
	} else {
		err = p.handle.Pause()
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("player: failed to sync playing state: playing=%t", state.IsPlaying)
	}
}

func (p *Player) releaseTimeUpdateLocked() {
	if p.timeUpdateCancel != nil {
		p.timeUpdateCancel()
		p.timeUpdateCancel = nil
	}
}

func (p *Player) onLoadedMetadata() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if _, ok := p.applied.Current(); !ok {
		p.mu.Unlock()
		return
	}

	if err := p.handle.SetPosition(0); err != nil {
		zlog.Warn().Err(err).Msg("player: failed to rewind handle")
	}
	p.progress = 0
	p.releaseTimeUpdateLocked()
	p.timeUpdateCancel = p.handle.Subscribe(audio.NotifyTimeUpdate, p.onTimeUpdate)

	view := p.viewLocked()
	p.mu.Unlock()
	p.emit(view)
}

func (p *Player) onTimeUpdate() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	ep, ok := p.applied.Current()
	if !ok {
		p.mu.Unlock()
		return
	}

	progress := ep.ClampProgress(int(p.handle.Position() / time.Second))
	if progress == p.progress {
		p.mu.Unlock()
		return
	}
	p.progress = progress

	view := p.viewLocked()
	p.mu.Unlock()
	p.emit(view)
}

func (p *Player) onEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	state := p.store.Snapshot()
	if state.HasNext() {
		if err := p.store.PlayNext(); err != nil {
			zlog.Warn().Err(err).Msg("player: failed to advance after episode end")
		}
		return
	}
	zlog.Info().Msg("player: last episode ended, clearing player state")
	p.store.ClearPlayerState()
}

func (p *Player) onPlay() {
	p.reportPlaying(true)
}

func (p *Player) onPause() {
	p.reportPlaying(false)
}

// reportPlaying copies a play/pause notification into the store. Stale
// notifications (the handle has moved on since) and echoes of a state the
// player already applied are ignored, so the player's own syncs never flow
// back into the store.
func (p *Player) reportPlaying(playing bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.handle.Playing() != playing || p.applied.IsPlaying == playing {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	zlog.Debug().Msgf("player: handle changed playing state on its own: playing=%t", playing)
	p.store.SetPlayingState(playing)
}

func (p *Player) onError() {
	if p.isClosed() {
		return
	}
	zlog.Error().Msg("player: media error reported by playback handle")
	p.store.SetPlayingState(false)
}

// Seek moves playback to seconds and updates progress at once, without
// waiting for the next time-update. The target is clamped to the episode.
// It returns the applied position.
func (p *Player) Seek(seconds int) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if !p.started {
		p.mu.Unlock()
		return 0, ErrNotStarted
	}
	ep, ok := p.applied.Current()
	if !ok {
		p.mu.Unlock()
		return 0, playback.ErrNoEpisode
	}
	if p.store.Snapshot().Selection != p.applied.Selection {
		p.mu.Unlock()
		return 0, errors.Wrap(playback.ErrNoEpisode, "selected episode is not loaded yet")
	}

	target := ep.ClampProgress(seconds)
	if err := p.handle.SetPosition(time.Duration(target) * time.Second); err != nil {
		p.mu.Unlock()
		return 0, errors.Wrap(err, "failed to seek")
	}
	p.progress = target

	view := p.viewLocked()
	p.mu.Unlock()
	p.emit(view)
	return target, nil
}

// Progress returns the elapsed seconds of the current episode.
func (p *Player) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// View returns the current render model.
func (p *Player) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

// viewLocked builds the view from the freshest store state. Progress only
// applies while the store still points at the episode the handle loaded.
func (p *Player) viewLocked() View {
	state := p.store.Snapshot()
	progress := p.progress
	if state.Selection != p.applied.Selection {
		progress = 0
	}
	return BuildView(state, progress)
}

func (p *Player) emit(v View) {
	if p.config.OnChange != nil {
		p.config.OnChange(v)
	}
}

func (p *Player) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close releases every subscription and unloads the handle.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started

	p.releaseTimeUpdateLocked()
	for _, cancel := range p.handleCancels {
		cancel()
	}
	p.handleCancels = nil
	if p.storeCancel != nil {
		p.storeCancel()
		p.storeCancel = nil
	}
	p.handle.Unload()
	p.mu.Unlock()

	if started {
		<-p.done
	}
}
