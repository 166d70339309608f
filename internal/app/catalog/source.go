// Package catalog provides the episode catalog: sources that load episode
// lists and a chain that merges them.
package catalog

import (
	"context"

	"github.com/osa030/podcastr/internal/domain/episode"
)

// Source is the interface for episode sources.
// Different implementations load episodes from different places
// (e.g., a local YAML file, a Spotify show).
type Source interface {
	// Episodes returns the episodes the source currently offers.
	Episodes(ctx context.Context) ([]episode.Episode, error)

	// Name returns the source type (used in config).
	Name() string
}

// SpotifyClient defines the Spotify operations needed by the spotify source.
type SpotifyClient interface {
	GetShowEpisodes(ctx context.Context, showURL string, limit int) ([]episode.Episode, error)
}
