package catalog

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/podcastr/internal/domain/episode"
)

type FileSourceConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// episodeFile is the on-disk layout of an episode file.
type episodeFile struct {
	Episodes []episode.Episode `yaml:"episodes"`
}

// FileSource loads episodes from a YAML file. The file is read on every
// call so edits show up on the next catalog reload.
type FileSource struct {
	config *FileSourceConfig
}

// NewFileSource creates a new FileSource.
func NewFileSource(settings map[string]any) (*FileSource, error) {
	var config FileSourceConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("file source config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("file source validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}
	return &FileSource{config: &config}, nil
}

// Episodes reads the episode file. Episodes without an ID get one derived
// from their media URL, so IDs stay stable across reloads.
func (s *FileSource) Episodes(ctx context.Context) ([]episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read episode file %s", s.config.Path)
	}

	var f episodeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse episode file %s", s.config.Path)
	}

	for i := range f.Episodes {
		if f.Episodes[i].ID == "" {
			f.Episodes[i].ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(f.Episodes[i].URL)).String()
		}
	}
	return f.Episodes, nil
}

// Name returns the source name.
func (s *FileSource) Name() string {
	return "file"
}
