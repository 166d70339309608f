package spotify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zmb3/spotify/v2"
)

func TestExtractShowID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:show:4rOoJ6Egrf8K2IrywzwOMk",
			expected: "4rOoJ6Egrf8K2IrywzwOMk",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/show/4rOoJ6Egrf8K2IrywzwOMk",
			expected: "4rOoJ6Egrf8K2IrywzwOMk",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/show/4rOoJ6Egrf8K2IrywzwOMk?si=abc123",
			expected: "4rOoJ6Egrf8K2IrywzwOMk",
		},
		{
			name:     "Localized URL with trailing slash",
			input:    "https://open.spotify.com/intl-pt/show/abc123/",
			expected: "abc123",
		},
		{
			name:     "Plain show ID",
			input:    "  4rOoJ6Egrf8K2IrywzwOMk ",
			expected: "4rOoJ6Egrf8K2IrywzwOMk",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractShowID(tt.input)
			assert.Equal(t, tt.expected, result,
				"extractShowID(%s) should return %s", tt.input, tt.expected)
		})
	}
}

func TestConvertEpisode(t *testing.T) {
	c := &Client{market: "BR"}
	e := &spotify.EpisodePage{
		ID:              "ep1",
		Name:            "Faladev #30",
		Description:     "Carreira em Go",
		AudioPreviewURL: "https://p.scdn.co/mp3-preview/ep1",
		Duration_ms:     3661500,
		ReleaseDate:     "2021-01-21",
		Images: []spotify.Image{
			{URL: "https://i.scdn.co/image/large"},
			{URL: "https://i.scdn.co/image/small"},
		},
	}

	ep := c.convertEpisode(e, "Rocketseat")

	assert.Equal(t, "ep1", ep.ID)
	assert.Equal(t, "Faladev #30", ep.Title)
	assert.Equal(t, "Rocketseat", ep.Members)
	assert.Equal(t, "https://i.scdn.co/image/large", ep.Thumbnail)
	assert.Equal(t, "https://p.scdn.co/mp3-preview/ep1", ep.URL)
	assert.Equal(t, 3661, ep.Duration)
	assert.Equal(t, time.Date(2021, time.January, 21, 0, 0, 0, 0, time.UTC), ep.PublishedAt)
	assert.NoError(t, ep.Validate())
}

func TestConvertEpisode_MissingPreview(t *testing.T) {
	c := &Client{market: "BR"}
	ep := c.convertEpisode(&spotify.EpisodePage{ID: "ep2", Name: "No preview", ReleaseDate: "2021"}, "")

	assert.Empty(t, ep.URL)
	assert.Empty(t, ep.Thumbnail)
	assert.True(t, ep.PublishedAt.IsZero())
	assert.Error(t, ep.Validate())
}

func TestRetry(t *testing.T) {
	c := &Client{maxRetries: 3, retryDelay: time.Millisecond}

	calls := 0
	err := c.retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("503 Service Unavailable")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = c.retry(func() error {
		calls++
		return errors.New("404 not found")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = c.retry(func() error {
		calls++
		return errors.New("429 rate limit")
	})
	assert.ErrorContains(t, err, "max retries exceeded")
	assert.Equal(t, 3, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
