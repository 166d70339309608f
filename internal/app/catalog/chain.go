package catalog

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/podcastr/internal/domain/episode"
)

// SourceWithMetadata wraps a source with its metadata.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain merges the episodes of several sources.
type Chain struct {
	sources []SourceWithMetadata
}

// NewChain creates a new source chain.
func NewChain(sources []SourceWithMetadata) *Chain {
	return &Chain{
		sources: sources,
	}
}

// Episodes loads every source in order and returns the merged list, newest
// first. Failing sources are skipped, invalid episodes are dropped and the
// first episode seen for an ID wins.
func (c *Chain) Episodes(ctx context.Context) ([]episode.Episode, error) {
	var all []episode.Episode
	seen := make(map[string]bool)

	for i, sm := range c.sources {
		zlog.Debug().Msgf("catalog: loading source: index=%d total=%d name=%s source_type=%s",
			i+1, len(c.sources), sm.DisplayName, sm.Source.Name())

		episodes, err := sm.Source.Episodes(ctx)
		if err != nil {
			zlog.Warn().Msgf("catalog: source failed, trying next: source=%s error=%v", sm.DisplayName, err)
			continue
		}

		added := 0
		for _, ep := range episodes {
			if err := ep.Validate(); err != nil {
				zlog.Warn().Msgf("catalog: dropping invalid episode: source=%s id=%s error=%v", sm.DisplayName, ep.ID, err)
				continue
			}
			if seen[ep.ID] {
				zlog.Debug().Msgf("catalog: skipping duplicate episode: source=%s id=%s", sm.DisplayName, ep.ID)
				continue
			}
			seen[ep.ID] = true
			all = append(all, ep)
			added++
		}

		zlog.Info().Msgf("catalog: source returned episodes: source=%s count=%d total_so_far=%d",
			sm.DisplayName, added, len(all))
	}

	if len(all) == 0 {
		return nil, errors.New("all sources failed to return episodes")
	}

	slices.SortStableFunc(all, func(a, b episode.Episode) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	return all, nil
}

// Len returns the number of configured sources.
func (c *Chain) Len() int {
	return len(c.sources)
}

// Sources returns the configured sources.
func (c *Chain) Sources() []SourceWithMetadata {
	return slices.Clone(c.sources)
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "source_chain"
}
