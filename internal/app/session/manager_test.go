package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/podcastr/internal/app/notification"
	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/domain/episode"
	"github.com/osa030/podcastr/internal/infra/audio"
	"github.com/osa030/podcastr/internal/infra/config"
)

type fakeCatalog struct {
	episodes []episode.Episode
	err      error
}

func (c *fakeCatalog) Episodes(ctx context.Context) ([]episode.Episode, error) {
	return c.episodes, c.err
}

type collectingStream struct {
	mu       sync.Mutex
	messages []*structpb.Struct
}

func (s *collectingStream) Send(msg *structpb.Struct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *collectingStream) last() *structpb.Struct {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Header: config.HeaderConfig{Locale: "pt_BR", DateLayout: "Mon, 2 January", Tagline: "O melhor para você ouvir, sempre"},
		Player: config.PlayerConfig{TimeUpdateIntervalMs: 10, EventBuffer: 64},
	}
}

func testEpisodes(n int) []episode.Episode {
	list := make([]episode.Episode, n)
	for i := range list {
		list[i] = episode.Episode{
			ID:        fmt.Sprintf("ep-%d", i),
			Title:     fmt.Sprintf("Episode %d", i),
			Thumbnail: "https://example.com/thumb.jpg",
			URL:       fmt.Sprintf("https://example.com/%d.mp3", i),
			Duration:  600,
		}
	}
	return list
}

func newTestManager(t *testing.T, catalog Catalog) *Manager {
	t.Helper()
	handle := audio.NewClockHandle(audio.Config{TimeUpdateInterval: 10 * time.Millisecond})
	t.Cleanup(handle.Close)

	m, err := NewManager(testConfig(), catalog, handle)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManager_NotRunning(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{episodes: testEpisodes(2)})

	assert.ErrorIs(t, m.TogglePlay(), ErrSessionNotRunning)
	assert.ErrorIs(t, m.PlayFrom(0), ErrSessionNotRunning)
	_, err := m.Seek(1)
	assert.ErrorIs(t, err, ErrSessionNotRunning)
}

func TestManager_StartFailsOnCatalogError(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{err: errors.New("offline")})
	err := m.Start(context.Background())
	assert.ErrorContains(t, err, "failed to load catalog")
}

func TestManager_PlaybackFlow(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{episodes: testEpisodes(3)})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))

	assert.Len(t, m.Episodes(), 3)
	assert.Equal(t, playback.StatusIdle, m.Status())
	assert.False(t, m.View().HasEpisode)

	require.NoError(t, m.PlayFrom(1))
	v := m.View()
	require.True(t, v.HasEpisode)
	assert.Equal(t, "Episode 1", v.Episode.Title)
	assert.True(t, v.Controls.Previous)
	assert.True(t, v.Controls.Next)
	assert.Equal(t, playback.StatusPlaying, m.Status())

	// Seek once the handle has reported the loaded media.
	assert.Eventually(t, func() bool {
		if _, err := m.Seek(42); err != nil {
			return false
		}
		time.Sleep(20 * time.Millisecond)
		return m.View().ProgressText == "00:00:42"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.TogglePlay())
	assert.Eventually(t, func() bool { return m.Status() == playback.StatusPaused }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.PlayNext())
	assert.Equal(t, "Episode 2", m.View().Episode.Title)
	assert.ErrorIs(t, m.PlayNext(), playback.ErrNoNext)

	require.NoError(t, m.PlayPrevious())
	require.NoError(t, m.ToggleLoop())
	require.NoError(t, m.ToggleShuffle())
	assert.True(t, m.View().IsLooping)
	assert.True(t, m.View().IsShuffling)

	require.NoError(t, m.Clear())
	assert.False(t, m.View().HasEpisode)
	assert.Equal(t, playback.StatusIdle, m.Status())
}

func TestManager_PlayEpisode(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{episodes: testEpisodes(3)})
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.PlayEpisode("ep-2"))
	v := m.View()
	assert.Equal(t, 1, v.Total)
	assert.False(t, v.Controls.Shuffle)
	assert.False(t, v.Controls.Next)

	assert.ErrorIs(t, m.PlayEpisode("missing"), ErrEpisodeNotFound)
	assert.ErrorIs(t, m.PlayFrom(3), playback.ErrIndexOutOfRange)
}

func TestManager_BroadcastsState(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{episodes: testEpisodes(2)})
	require.NoError(t, m.Start(context.Background()))

	stream := &collectingStream{}
	m.Notifications().Subscribe(stream)

	require.NoError(t, m.PlayFrom(0))

	assert.Eventually(t, func() bool {
		msg := stream.last()
		if msg == nil {
			return false
		}
		ep := msg.GetFields()["episode"].GetStructValue()
		return ep.GetFields()["title"].GetStringValue() == "Episode 0"
	}, time.Second, 5*time.Millisecond)

	msg := stream.last()
	assert.Greater(t, msg.GetFields()[notification.SequenceField].GetNumberValue(), float64(0))
	assert.True(t, msg.GetFields()["has_episode"].GetBoolValue())
}

func TestManager_HeaderAndStateMessage(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{episodes: testEpisodes(1)})
	require.NoError(t, m.Start(context.Background()))

	h := m.Header()
	assert.NotEmpty(t, h.Date)
	assert.Equal(t, "O melhor para você ouvir, sempre", h.Tagline)

	msg, err := m.StateMessage()
	require.NoError(t, err)
	assert.False(t, msg.GetFields()["has_episode"].GetBoolValue())
	assert.Equal(t, "00:00:00", msg.GetFields()["duration_text"].GetStringValue())
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(t, &fakeCatalog{episodes: testEpisodes(1)})
	require.NoError(t, m.Start(context.Background()))

	m.Close()
	m.Close()

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel should be closed")
	}
	assert.ErrorIs(t, m.TogglePlay(), ErrSessionNotRunning)
}
