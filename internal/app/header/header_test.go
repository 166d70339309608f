package header

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_Render(t *testing.T) {
	now := time.Date(2026, time.October, 18, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name:     "english locale",
			config:   Config{Locale: "en_US", DateLayout: "Mon, 2 January"},
			expected: "Sun, 18 October",
		},
		{
			name:     "english long layout",
			config:   Config{Locale: "en_US", DateLayout: "Monday, 2 January 2006"},
			expected: "Sunday, 18 October 2026",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h.Render(now).Date)
		})
	}
}

func TestHeader_DefaultsToPortuguese(t *testing.T) {
	h, err := New(Config{})
	require.NoError(t, err)

	v := h.Render(time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, strings.ToLower(v.Date), "outubro")
	assert.Contains(t, v.Date, "18")
	assert.Equal(t, "O melhor para você ouvir, sempre", v.Tagline)
	assert.Equal(t, LogoPath, v.LogoPath)
	assert.Equal(t, "Podcastr", v.LogoAlt)
	assert.Equal(t, 163, v.LogoWidth)
	assert.Equal(t, 40, v.LogoHeight)
}

func TestHeader_UnsupportedLocale(t *testing.T) {
	_, err := New(Config{Locale: "xx_XX"})
	assert.ErrorContains(t, err, "unsupported header locale")
}
