// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/podcastr/internal/domain/episode"
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	// Create token from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "BR"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetShowEpisodes retrieves up to limit episodes of a show, newest first.
// showURL can be a Spotify show URL, URI, or ID. A limit <= 0 fetches every page.
func (c *Client) GetShowEpisodes(ctx context.Context, showURL string, limit int) ([]episode.Episode, error) {
	showID := extractShowID(showURL)
	if showID == "" {
		return nil, errors.New("invalid show URL")
	}

	var show *spotify.FullShow
	err := c.retry(func() error {
		s, err := c.client.GetShow(ctx, spotify.ID(showID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		show = s
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get show")
	}

	var episodes []episode.Episode
	page := &show.Episodes
	for {
		for i := range page.Episodes {
			episodes = append(episodes, c.convertEpisode(&page.Episodes[i], show.Publisher))
			if limit > 0 && len(episodes) >= limit {
				return episodes, nil
			}
		}

		err := c.retry(func() error {
			return c.client.NextPage(ctx, page)
		})
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to get show episodes")
		}
	}

	zlog.Debug().Msgf("spotify: fetched show episodes: show=%s name=%q count=%d", showID, show.Name, len(episodes))
	return episodes, nil
}

// convertEpisode converts a Spotify episode to a domain Episode.
// The audio preview is the only directly playable URL the Web API exposes.
func (c *Client) convertEpisode(e *spotify.EpisodePage, publisher string) episode.Episode {
	var thumbnail string
	if len(e.Images) > 0 {
		thumbnail = e.Images[0].URL
	}

	var published time.Time
	if e.ReleaseDate != "" {
		if t, err := time.Parse(time.DateOnly, e.ReleaseDate); err == nil {
			published = t
		}
	}

	return episode.Episode{
		ID:          string(e.ID),
		Title:       e.Name,
		Members:     publisher,
		Thumbnail:   thumbnail,
		URL:         e.AudioPreviewURL,
		Duration:    int(e.Duration_ms) / 1000,
		PublishedAt: published,
		Description: e.Description,
	}
}

// GetShowURL returns the Spotify URL for a show.
func (c *Client) GetShowURL(showID string) string {
	return fmt.Sprintf("https://open.spotify.com/show/%s", showID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractShowID extracts the show ID from a Spotify show URL or URI.
func extractShowID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:show:SHOW_ID
	if strings.HasPrefix(input, "spotify:show:") {
		return strings.TrimPrefix(input, "spotify:show:")
	}

	// Handle URL format: https://open.spotify.com/show/SHOW_ID or https://open.spotify.com/intl-XX/show/SHOW_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/show/") {
		parts := strings.Split(input, "/show/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a show ID
	return input
}
