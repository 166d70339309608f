package player

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/domain/episode"
	"github.com/osa030/podcastr/internal/infra/audio"
)

// fakeHandle records calls and lets tests emit notifications by hand.
type fakeHandle struct {
	mu sync.Mutex

	src      string
	loads    []string
	autoplay bool
	playing  bool
	plays    int
	pauses   int
	unloads  int
	position time.Duration
	loop     bool

	subs   map[audio.Notification]map[int]func()
	nextID int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{subs: make(map[audio.Notification]map[int]func())}
}

func (f *fakeHandle) Load(src string, duration time.Duration, autoplay bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.src = src
	f.loads = append(f.loads, src)
	f.autoplay = autoplay
	f.playing = autoplay
	f.position = 0
	return nil
}

func (f *fakeHandle) Unload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.src = ""
	f.playing = false
	f.unloads++
}

func (f *fakeHandle) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	f.plays++
	return nil
}

func (f *fakeHandle) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.pauses++
	return nil
}

func (f *fakeHandle) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeHandle) SetPosition(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
	return nil
}

func (f *fakeHandle) SetLoop(loop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loop = loop
}

func (f *fakeHandle) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// setPlaying changes the handle state without going through the player.
func (f *fakeHandle) setPlaying(playing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = playing
}

func (f *fakeHandle) Subscribe(kind audio.Notification, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.subs[kind] == nil {
		f.subs[kind] = make(map[int]func())
	}
	f.subs[kind][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[kind], id)
	}
}

func (f *fakeHandle) emit(kind audio.Notification) {
	f.mu.Lock()
	fns := make([]func(), 0)
	for _, fn := range f.subs[kind] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeHandle) setPosition(pos time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = pos
}

func (f *fakeHandle) activeSubs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.subs {
		n += len(m)
	}
	return n
}

func (f *fakeHandle) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeHandle) snapshot() fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeHandle{
		src:      f.src,
		autoplay: f.autoplay,
		playing:  f.playing,
		plays:    f.plays,
		pauses:   f.pauses,
		unloads:  f.unloads,
		position: f.position,
		loop:     f.loop,
	}
}

func testEpisodes(durations ...int) []episode.Episode {
	list := make([]episode.Episode, len(durations))
	for i, d := range durations {
		list[i] = episode.Episode{
			ID:        fmt.Sprintf("ep-%d", i),
			Title:     fmt.Sprintf("Episode %d", i),
			Members:   "Diego e Richard",
			Thumbnail: "https://example.com/thumb.jpg",
			URL:       fmt.Sprintf("https://example.com/%d.mp3", i),
			Duration:  d,
		}
	}
	return list
}

func startPlayer(t *testing.T, store *playback.Store) (*Player, *fakeHandle) {
	t.Helper()
	h := newFakeHandle()
	p := New(store, h, Config{})
	require.NoError(t, p.Start())
	t.Cleanup(p.Close)
	return p, h
}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func TestPlayer_SingleEpisodeScenario(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))

	p, h := startPlayer(t, store)

	v := p.View()
	require.True(t, v.HasEpisode)
	assert.Equal(t, "Episode 0", v.Episode.Title)
	assert.Equal(t, 0, v.Progress)
	assert.Equal(t, "00:00:00", v.ProgressText)
	assert.Equal(t, "00:01:40", v.DurationText)
	assert.Equal(t, 100, v.SliderMax)
	assert.False(t, v.Controls.Next)
	assert.False(t, v.Controls.Previous)
	assert.False(t, v.Controls.Shuffle)
	assert.True(t, v.Controls.Play)
	assert.True(t, v.Controls.Loop)

	hs := h.snapshot()
	assert.Equal(t, "https://example.com/0.mp3", hs.src)
	assert.True(t, hs.autoplay)
}

func TestPlayer_SeekIsOptimistic(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))
	p, h := startPlayer(t, store)

	got, err := p.Seek(42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 42, p.Progress())
	assert.Equal(t, "00:00:42", p.View().ProgressText)
	assert.Equal(t, 42*time.Second, h.snapshot().position)
}

func TestPlayer_SeekClamps(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))
	p, h := startPlayer(t, store)

	tests := []struct {
		name     string
		seconds  int
		expected int
	}{
		{name: "beyond duration", seconds: 150, expected: 100},
		{name: "negative", seconds: -10, expected: 0},
		{name: "exact duration", seconds: 100, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Seek(tt.seconds)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.expected, p.Progress())
			assert.Equal(t, time.Duration(tt.expected)*time.Second, h.snapshot().position)
		})
	}
}

func TestPlayer_SeekWithoutEpisode(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	p, _ := startPlayer(t, store)

	_, err := p.Seek(10)
	assert.ErrorIs(t, err, playback.ErrNoEpisode)

	v := p.View()
	assert.False(t, v.HasEpisode)
	assert.Equal(t, Controls{}, v.Controls)
	assert.Equal(t, "00:00:00", v.DurationText)
}

// frozenStore never delivers store events, so the player keeps the state it
// applied at Start.
type frozenStore struct {
	*playback.Store
}

func (s frozenStore) Subscribe() (<-chan playback.Event, func()) {
	ch := make(chan playback.Event)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func TestPlayer_SeekWhileSelectionPending(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100, 200), 0))

	h := newFakeHandle()
	p := New(frozenStore{store}, h, Config{})
	require.NoError(t, p.Start())
	t.Cleanup(p.Close)

	require.NoError(t, store.PlayNext())

	_, err := p.Seek(42)
	assert.ErrorIs(t, err, playback.ErrNoEpisode)
	assert.Equal(t, time.Duration(0), h.snapshot().position)
	assert.Equal(t, 0, p.Progress())
}

func TestPlayer_SeekBeforeStart(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	p := New(store, newFakeHandle(), Config{})
	_, err := p.Seek(1)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestPlayer_TimeUpdateAdvancesProgress(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))
	p, h := startPlayer(t, store)

	// No time-update subscription exists until metadata is loaded.
	h.setPosition(30 * time.Second)
	h.emit(audio.NotifyTimeUpdate)
	assert.Equal(t, 0, p.Progress())

	h.emit(audio.NotifyLoadedMetadata)
	assert.Equal(t, time.Duration(0), h.snapshot().position)

	h.setPosition(30*time.Second + 900*time.Millisecond)
	h.emit(audio.NotifyTimeUpdate)
	assert.Equal(t, 30, p.Progress())

	h.setPosition(250 * time.Second)
	h.emit(audio.NotifyTimeUpdate)
	assert.Equal(t, 100, p.Progress())
}

func TestPlayer_NewEpisodeResetsProgress(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100, 200), 0))
	p, h := startPlayer(t, store)

	h.emit(audio.NotifyLoadedMetadata)
	_, err := p.Seek(60)
	require.NoError(t, err)

	require.NoError(t, store.PlayNext())
	assert.Eventually(t, func() bool { return h.loadCount() == 2 }, waitFor, tick)
	assert.Equal(t, 0, p.Progress())

	// The previous episode's time-update subscription was released.
	h.setPosition(80 * time.Second)
	h.emit(audio.NotifyTimeUpdate)
	assert.Equal(t, 0, p.Progress())

	h.emit(audio.NotifyLoadedMetadata)
	h.emit(audio.NotifyTimeUpdate)
	assert.Equal(t, 0, p.Progress())

	v := p.View()
	assert.Equal(t, "Episode 1", v.Episode.Title)
	assert.Equal(t, 200, v.SliderMax)
	assert.True(t, v.Controls.Previous)
	assert.False(t, v.Controls.Next)
	assert.True(t, v.Controls.Shuffle)
}

func TestPlayer_EndedAdvancesWhenNextExists(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100, 100), 0))
	_, h := startPlayer(t, store)

	h.emit(audio.NotifyEnded)

	assert.Equal(t, 1, store.Snapshot().CurrentIndex)
	assert.Eventually(t, func() bool { return h.loadCount() == 2 }, waitFor, tick)
	assert.Equal(t, "https://example.com/1.mp3", h.snapshot().src)
}

func TestPlayer_EndedClearsWithoutNext(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100, 100), 1))
	p, h := startPlayer(t, store)

	h.emit(audio.NotifyEnded)

	_, ok := store.Snapshot().Current()
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return h.snapshot().unloads >= 1 }, waitFor, tick)

	v := p.View()
	assert.False(t, v.HasEpisode)
	assert.Equal(t, 0, v.Progress)
}

func TestPlayer_PlayPauseNotificationsUpdateStore(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))
	_, h := startPlayer(t, store)

	h.setPlaying(false)
	h.emit(audio.NotifyPause)
	assert.False(t, store.Snapshot().IsPlaying)
	assert.Eventually(t, func() bool { return h.snapshot().pauses == 1 }, waitFor, tick)

	h.setPlaying(true)
	h.emit(audio.NotifyPlay)
	assert.True(t, store.Snapshot().IsPlaying)
	assert.Eventually(t, func() bool { return h.snapshot().plays == 1 }, waitFor, tick)

	h.emit(audio.NotifyError)
	assert.False(t, store.Snapshot().IsPlaying)
}

func TestPlayer_IgnoresStaleAndEchoedNotifications(t *testing.T) {
	tests := []struct {
		name          string
		handlePlaying bool
		notification  audio.Notification
	}{
		{"stale pause while handle plays", true, audio.NotifyPause},
		{"echoed play of applied state", true, audio.NotifyPlay},
		{"stale play while handle paused", false, audio.NotifyPlay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := playback.NewStore(playback.Config{})
			require.NoError(t, store.PlayList(testEpisodes(100), 0))
			_, h := startPlayer(t, store)

			events, cancel := store.Subscribe()
			defer cancel()

			h.setPlaying(tt.handlePlaying)
			h.emit(tt.notification)

			assert.True(t, store.Snapshot().IsPlaying)
			assert.Empty(t, events)
		})
	}
}

func TestPlayer_RapidTogglesSettle(t *testing.T) {
	tests := []struct {
		name        string
		actions     func(s *playback.Store) error
		wantPlaying bool
	}{
		{
			name: "double toggle",
			actions: func(s *playback.Store) error {
				if err := s.TogglePlay(); err != nil {
					return err
				}
				return s.TogglePlay()
			},
			wantPlaying: true,
		},
		{
			name:        "single toggle",
			actions:     func(s *playback.Store) error { return s.TogglePlay() },
			wantPlaying: false,
		},
		{
			name: "next then pause",
			actions: func(s *playback.Store) error {
				if err := s.PlayNext(); err != nil {
					return err
				}
				return s.TogglePlay()
			},
			wantPlaying: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle := audio.NewClockHandle(audio.Config{TimeUpdateInterval: 10 * time.Millisecond})
			t.Cleanup(handle.Close)

			store := playback.NewStore(playback.Config{})
			require.NoError(t, store.PlayList(testEpisodes(1000, 1000), 0))

			p := New(store, handle, Config{})
			require.NoError(t, p.Start())
			t.Cleanup(p.Close)

			require.NoError(t, tt.actions(store))
			time.Sleep(200 * time.Millisecond)

			events, cancel := store.Subscribe()
			defer cancel()
			time.Sleep(300 * time.Millisecond)

			assert.Empty(t, events, "store kept changing after the toggles")
			assert.Equal(t, tt.wantPlaying, store.Snapshot().IsPlaying)
			assert.Equal(t, tt.wantPlaying, handle.Playing())
		})
	}
}

func TestPlayer_PlayingFlagDrivesHandle(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))
	_, h := startPlayer(t, store)

	require.NoError(t, store.TogglePlay())
	assert.Eventually(t, func() bool { return h.snapshot().pauses == 1 }, waitFor, tick)
	assert.False(t, h.snapshot().playing)

	require.NoError(t, store.TogglePlay())
	assert.Eventually(t, func() bool { return h.snapshot().plays == 1 }, waitFor, tick)
	assert.True(t, h.snapshot().playing)
}

func TestPlayer_LoopFlagDrivesHandle(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))
	p, h := startPlayer(t, store)

	store.ToggleLoop()
	assert.Eventually(t, func() bool { return h.snapshot().loop }, waitFor, tick)
	assert.True(t, p.View().IsLooping)
}

func TestPlayer_OnChangeReceivesViews(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))

	var mu sync.Mutex
	var views []View
	p := New(store, newFakeHandle(), Config{OnChange: func(v View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	}})
	require.NoError(t, p.Start())
	defer p.Close()

	_, err := p.Seek(10)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, views)
	assert.Equal(t, 10, views[len(views)-1].Progress)
}

func TestPlayer_CloseReleasesSubscriptions(t *testing.T) {
	store := playback.NewStore(playback.Config{})
	require.NoError(t, store.PlayList(testEpisodes(100), 0))

	h := newFakeHandle()
	p := New(store, h, Config{})
	require.NoError(t, p.Start())
	h.emit(audio.NotifyLoadedMetadata)
	assert.Greater(t, h.activeSubs(), 0)

	p.Close()
	p.Close()

	assert.Equal(t, 0, h.activeSubs())
	assert.GreaterOrEqual(t, h.snapshot().unloads, 1)
	assert.ErrorIs(t, p.Start(), ErrClosed)

	_, err := p.Seek(5)
	assert.ErrorIs(t, err, ErrClosed)
}
