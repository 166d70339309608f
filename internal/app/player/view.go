package player

import (
	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/domain/episode"
)

// Labels rendered by the player.
const (
	NowPlayingLabel = "Tocando Agora"
	EmptyMessage    = "Selecione um podcast para ouvir"
)

// Controls reports which transport buttons are enabled.
type Controls struct {
	Shuffle  bool `json:"shuffle"`
	Previous bool `json:"previous"`
	Play     bool `json:"play"`
	Next     bool `json:"next"`
	Loop     bool `json:"loop"`
}

// View is the render model of the player.
type View struct {
	Episode      *episode.Episode `json:"episode,omitempty"`
	HasEpisode   bool             `json:"has_episode"`
	Index        int              `json:"index"`
	Total        int              `json:"total"`
	Progress     int              `json:"progress"`
	ProgressText string           `json:"progress_text"`
	DurationText string           `json:"duration_text"`
	SliderMax    int              `json:"slider_max"`
	IsPlaying    bool             `json:"is_playing"`
	IsLooping    bool             `json:"is_looping"`
	IsShuffling  bool             `json:"is_shuffling"`
	Controls     Controls         `json:"controls"`
}

// BuildView derives the player view from a store snapshot and the local
// progress. Without an episode the progress is ignored and every control
// is disabled.
func BuildView(state playback.State, progress int) View {
	v := View{
		Index:       state.CurrentIndex,
		Total:       len(state.Episodes),
		IsPlaying:   state.IsPlaying,
		IsLooping:   state.IsLooping,
		IsShuffling: state.IsShuffling,
	}

	ep, ok := state.Current()
	if !ok {
		v.ProgressText = episode.FormatDuration(0)
		v.DurationText = episode.FormatDuration(0)
		return v
	}

	v.Episode = ep
	v.HasEpisode = true
	v.Progress = ep.ClampProgress(progress)
	v.ProgressText = episode.FormatDuration(v.Progress)
	v.DurationText = episode.FormatDuration(ep.Duration)
	v.SliderMax = ep.Duration
	v.Controls = Controls{
		Shuffle:  len(state.Episodes) > 1,
		Previous: state.HasPrevious(),
		Play:     true,
		Next:     state.HasNext(),
		Loop:     true,
	}
	return v
}
