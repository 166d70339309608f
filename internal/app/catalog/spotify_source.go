package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/podcastr/internal/domain/episode"
)

type SpotifySourceConfig struct {
	ShowURL     string `yaml:"show_url" mapstructure:"show_url" validate:"required"`
	MaxEpisodes int    `yaml:"max_episodes" mapstructure:"max_episodes" default:"50" validate:"gte=1,lte=500"`
}

// SpotifySource loads the episodes of a Spotify show.
type SpotifySource struct {
	spotify SpotifyClient
	config  *SpotifySourceConfig
}

// NewSpotifySource creates a new SpotifySource.
func NewSpotifySource(spotify SpotifyClient, settings map[string]any) (*SpotifySource, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}

	var config SpotifySourceConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("spotify source config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("spotify source validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &SpotifySource{spotify: spotify, config: &config}, nil
}

// Episodes fetches the show's latest episodes.
func (s *SpotifySource) Episodes(ctx context.Context) ([]episode.Episode, error) {
	episodes, err := s.spotify.GetShowEpisodes(ctx, s.config.ShowURL, s.config.MaxEpisodes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get show episodes")
	}
	return episodes, nil
}

// Name returns the source name.
func (s *SpotifySource) Name() string {
	return "spotify"
}
