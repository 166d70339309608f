// Package audio provides playback handles: live media resources exposing
// transport controls and playback notifications.
package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrNoSource = errors.New("no media source loaded")
	ErrClosed   = errors.New("handle is closed")
)

// Notification represents a playback notification kind.
type Notification int

const (
	NotifyTimeUpdate     Notification = iota // Position advanced or was set
	NotifyLoadedMetadata                     // New media is ready, duration known
	NotifyEnded                              // Playback reached the end without looping
	NotifyPlay                               // Playback started
	NotifyPause                              // Playback paused
	NotifyError                              // Media could not be loaded or played
)

// String returns the string representation of the notification.
func (n Notification) String() string {
	switch n {
	case NotifyTimeUpdate:
		return "timeupdate"
	case NotifyLoadedMetadata:
		return "loadedmetadata"
	case NotifyEnded:
		return "ended"
	case NotifyPlay:
		return "play"
	case NotifyPause:
		return "pause"
	case NotifyError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds clock handle configuration.
type Config struct {
	TimeUpdateInterval time.Duration // How often time-update fires while playing
}

// ClockHandle is a playback handle that tracks media position against the
// wall clock. It behaves like a media element whose output happens elsewhere.
//
// Notifications are queued and delivered in order on a single dispatcher
// goroutine; they are never delivered from inside a handle method.
type ClockHandle struct {
	mu sync.Mutex

	// Media state
	src       string
	duration  time.Duration
	loop      bool
	playing   bool
	base      time.Duration // Position when startedAt was taken
	startedAt time.Time

	tickCancel func()
	config     Config

	// Subscribers
	subs   map[Notification]map[int]func()
	nextID int

	// Dispatch queue
	queue []Notification
	wake  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewClockHandle creates a handle and starts its dispatcher.
func NewClockHandle(config Config) *ClockHandle {
	if config.TimeUpdateInterval <= 0 {
		config.TimeUpdateInterval = 250 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &ClockHandle{
		config: config,
		subs:   make(map[Notification]map[int]func()),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Subscribe registers fn for a notification kind and returns a func that
// releases the registration.
func (h *ClockHandle) Subscribe(kind Notification, fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[int]func())
	}
	h.subs[kind][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[kind], id)
	}
}

// Load replaces the media source. Position resets to zero and
// loaded-metadata is emitted; with autoplay set playback starts at once.
func (h *ClockHandle) Load(src string, duration time.Duration, autoplay bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	h.stopTickerLocked()
	h.playing = false
	h.base = 0

	if src == "" || duration < 0 {
		h.src = ""
		h.duration = 0
		h.enqueueLocked(NotifyError)
		return errors.Wrapf(ErrNoSource, "cannot load %q", src)
	}

	h.src = src
	h.duration = duration
	zlog.Debug().Msgf("audio: loaded source: src=%s duration=%v autoplay=%t", src, duration, autoplay)
	h.enqueueLocked(NotifyLoadedMetadata)

	if autoplay {
		h.startLocked()
		h.enqueueLocked(NotifyPlay)
	}
	return nil
}

// Unload drops the current source without emitting notifications.
func (h *ClockHandle) Unload() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopTickerLocked()
	h.src = ""
	h.duration = 0
	h.playing = false
	h.base = 0
}

// Play starts or resumes playback. Playing an ended source restarts it.
func (h *ClockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.src == "" {
		return ErrNoSource
	}
	if h.playing {
		return nil
	}
	if h.base >= h.duration {
		h.base = 0
	}

	h.startLocked()
	h.enqueueLocked(NotifyPlay)
	return nil
}

// Pause pauses playback, keeping the position.
func (h *ClockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if !h.playing {
		return nil
	}

	h.base = h.positionLocked()
	h.playing = false
	h.stopTickerLocked()
	h.enqueueLocked(NotifyPause)
	return nil
}

// Position returns the current playback position.
func (h *ClockHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

// SetPosition seeks to pos, clamped to the media duration.
func (h *ClockHandle) SetPosition(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.src == "" {
		return ErrNoSource
	}
	if pos < 0 {
		pos = 0
	}
	if pos > h.duration {
		pos = h.duration
	}

	h.base = pos
	h.startedAt = toWallTime(time.Now())
	h.enqueueLocked(NotifyTimeUpdate)
	return nil
}

// SetLoop sets whether playback wraps around at the end.
func (h *ClockHandle) SetLoop(loop bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loop = loop
}

// Loop reports the loop flag.
func (h *ClockHandle) Loop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loop
}

// Playing reports whether the handle is playing.
func (h *ClockHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

// Source returns the loaded media source.
func (h *ClockHandle) Source() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.src
}

// Close stops playback and the dispatcher. Pending notifications are dropped.
func (h *ClockHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.stopTickerLocked()
	h.playing = false
	h.queue = nil
	h.mu.Unlock()

	h.cancel()
	<-h.done
}

func (h *ClockHandle) positionLocked() time.Duration {
	if !h.playing {
		return h.base
	}
	pos := h.base + toWallTime(time.Now()).Sub(h.startedAt)
	if pos > h.duration {
		if h.loop && h.duration > 0 {
			return pos % h.duration
		}
		return h.duration
	}
	return pos
}

// startLocked marks the handle as playing and starts the time-update ticker.
// Must be called with lock held.
func (h *ClockHandle) startLocked() {
	h.playing = true
	h.startedAt = toWallTime(time.Now())
	h.stopTickerLocked()

	ctx, cancel := context.WithCancel(h.ctx)
	h.tickCancel = cancel
	go h.tick(ctx)
}

func (h *ClockHandle) stopTickerLocked() {
	if h.tickCancel != nil {
		h.tickCancel()
		h.tickCancel = nil
	}
}

// tick advances playback on every interval until cancelled or ended.
func (h *ClockHandle) tick(ctx context.Context) {
	ticker := time.NewTicker(h.config.TimeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.advance(ctx) {
				return
			}
		}
	}
}

// advance emits time-update and handles the end of media.
// It returns true once playback has ended.
func (h *ClockHandle) advance(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	// The ticker may have been replaced while waiting for the lock.
	if ctx.Err() != nil || !h.playing {
		return true
	}

	elapsed := h.base + toWallTime(time.Now()).Sub(h.startedAt)
	if elapsed < h.duration {
		h.enqueueLocked(NotifyTimeUpdate)
		return false
	}

	if h.loop && h.duration > 0 {
		h.base = elapsed % h.duration
		h.startedAt = toWallTime(time.Now())
		h.enqueueLocked(NotifyTimeUpdate)
		return false
	}

	zlog.Debug().Msgf("audio: source ended: src=%s duration=%v", h.src, h.duration)
	h.base = h.duration
	h.playing = false
	h.stopTickerLocked()
	h.enqueueLocked(NotifyTimeUpdate)
	h.enqueueLocked(NotifyPause)
	h.enqueueLocked(NotifyEnded)
	return true
}

// enqueueLocked queues a notification for the dispatcher.
// Must be called with lock held.
func (h *ClockHandle) enqueueLocked(n Notification) {
	if h.closed {
		return
	}
	h.queue = append(h.queue, n)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued notifications in arrival order.
func (h *ClockHandle) dispatch() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.wake:
		}

		for {
			h.mu.Lock()
			if len(h.queue) == 0 || h.closed {
				h.mu.Unlock()
				break
			}
			n := h.queue[0]
			h.queue = h.queue[1:]
			fns := make([]func(), 0, len(h.subs[n]))
			for _, fn := range h.subs[n] {
				fns = append(fns, fn)
			}
			h.mu.Unlock()

			for _, fn := range fns {
				fn()
			}
		}
	}
}

// toWallTime returns the time with monotonic clock stripped.
// Differences are then computed on wall clock time, so suspend and drift
// of the monotonic clock do not skew the playback position.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
