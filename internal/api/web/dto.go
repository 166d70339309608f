package web

import (
	"github.com/osa030/podcastr/internal/app/header"
	"github.com/osa030/podcastr/internal/app/player"
	"github.com/osa030/podcastr/internal/domain/episode"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Playback string `json:"playback"`
}

type PlayerResponse struct {
	Header header.View `json:"header"`
	Player player.View `json:"player"`
	Status string      `json:"status"`
}

type EpisodesResponse struct {
	Episodes []episode.Episode `json:"episodes"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
