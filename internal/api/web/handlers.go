package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/podcastr/internal/app/header"
	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/app/player"
	"github.com/osa030/podcastr/internal/app/session"
	"github.com/osa030/podcastr/internal/domain/episode"
)

type pageData struct {
	Header     header.View
	Player     player.View
	Episodes   []episode.Episode
	NowPlaying string
	Empty      string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Header:     s.session.Header(),
		Player:     s.session.View(),
		Episodes:   s.session.Episodes(),
		NowPlaying: player.NowPlayingLabel,
		Empty:      player.EmptyMessage,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		zlog.Error().Err(err).Msg("web: failed to render page")
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var err error
	switch chi.URLParam(r, "action") {
	case "toggle-play":
		err = s.session.TogglePlay()
	case "next":
		err = s.session.PlayNext()
	case "previous":
		err = s.session.PlayPrevious()
	case "shuffle":
		err = s.session.ToggleShuffle()
	case "loop":
		err = s.session.ToggleLoop()
	case "clear":
		err = s.session.Clear()
	default:
		writeError(w, http.StatusNotFound, "UNKNOWN_ACTION", "Unknown player action")
		return
	}
	s.respond(w, r, err)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	seconds, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SECONDS", "seconds must be an integer")
		return
	}
	_, err = s.session.Seek(seconds)
	s.respond(w, r, err)
}

func (s *Server) handlePlayEpisode(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.session.PlayEpisode(chi.URLParam(r, "id")))
}

func (s *Server) handlePlayFrom(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INDEX", "index must be an integer")
		return
	}
	s.respond(w, r, s.session.PlayFrom(index))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Playback: s.session.Status().String(),
	})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playerResponse())
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EpisodesResponse{Episodes: s.session.Episodes()})
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	ep, err := s.session.Episode(chi.URLParam(r, "id"))
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) playerResponse() PlayerResponse {
	return PlayerResponse{
		Header: s.session.Header(),
		Player: s.session.View(),
		Status: s.session.Status().String(),
	}
}

// respond finishes a control request. Form posts are redirected back to the
// page; JSON clients get the new player state.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, s.playerResponse())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrEpisodeNotFound):
		return http.StatusNotFound, "EPISODE_NOT_FOUND"
	case errors.Is(err, playback.ErrIndexOutOfRange):
		return http.StatusBadRequest, "INDEX_OUT_OF_RANGE"
	case errors.Is(err, playback.ErrNoEpisode),
		errors.Is(err, playback.ErrNoNext),
		errors.Is(err, playback.ErrNoPrevious),
		errors.Is(err, playback.ErrEmptyList):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, session.ErrSessionNotRunning),
		errors.Is(err, player.ErrNotStarted),
		errors.Is(err, player.ErrClosed):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zlog.Error().Err(err).Msg("web: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
