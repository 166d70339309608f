// Package episode provides the Episode domain entity.
package episode

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Episode represents a single podcast episode.
// Episodes are immutable once loaded into an episode list.
type Episode struct {
	ID          string    `yaml:"id" json:"id" mapstructure:"id"`
	Title       string    `yaml:"title" json:"title" mapstructure:"title" validate:"required"`
	Members     string    `yaml:"members" json:"members" mapstructure:"members"`
	Thumbnail   string    `yaml:"thumbnail" json:"thumbnail" mapstructure:"thumbnail" validate:"required,url"`
	URL         string    `yaml:"url" json:"url" mapstructure:"url" validate:"required,url"`
	Duration    int       `yaml:"duration" json:"duration" mapstructure:"duration" validate:"gte=0"` // Seconds
	PublishedAt time.Time `yaml:"published_at" json:"published_at" mapstructure:"published_at"`
	Description string    `yaml:"description" json:"description" mapstructure:"description"`
}

var validate = validator.New()

// Validate checks that the episode carries everything the player needs.
func (e *Episode) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.Wrapf(err, "invalid episode %q", e.Title)
	}
	return nil
}

// Length returns the episode duration as a time.Duration.
func (e *Episode) Length() time.Duration {
	return time.Duration(e.Duration) * time.Second
}

// ClampProgress bounds seconds to [0, Duration].
func (e *Episode) ClampProgress(seconds int) int {
	if seconds < 0 {
		return 0
	}
	if seconds > e.Duration {
		return e.Duration
	}
	return seconds
}
