// Package web serves the podcast player page, its JSON API and the image
// optimizer over a chi router.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/osa030/podcastr/internal/app/header"
	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/app/player"
	"github.com/osa030/podcastr/internal/domain/episode"
)

// Control token transport for the HTML and JSON surfaces.
const (
	ControlTokenHeader = "X-Control-Token"
	ControlTokenCookie = "control_token"
)

//go:embed templates/*.html static/*.svg
var assets embed.FS

// Session is the part of the session manager the web surface drives.
type Session interface {
	Episodes() []episode.Episode
	Episode(id string) (episode.Episode, error)
	PlayEpisode(id string) error
	PlayFrom(index int) error
	TogglePlay() error
	ToggleLoop() error
	ToggleShuffle() error
	PlayNext() error
	PlayPrevious() error
	Clear() error
	Seek(seconds int) (int, error)
	View() player.View
	Header() header.View
	Status() playback.Status
}

// Config holds web server configuration.
type Config struct {
	Version      string
	ControlToken string
	Logger       zerolog.Logger
}

// Server is the HTTP surface of the player.
type Server struct {
	router  chi.Router
	session Session
	images  *ImageOptimizer
	page    *template.Template
	config  Config
}

// NewServer builds the router. images may be nil, in which case the image
// endpoint is not registered.
func NewServer(cfg Config, session Session, images *ImageOptimizer) (*Server, error) {
	page, err := template.New("page.html").Funcs(template.FuncMap{
		"duration": episode.FormatDuration,
	}).ParseFS(assets, "templates/page.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page template")
	}

	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open static assets")
	}

	s := &Server{
		router:  chi.NewRouter(),
		session: session,
		images:  images,
		page:    page,
		config:  cfg,
	}

	r := s.router
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware)

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Group(func(r chi.Router) {
		r.Use(ControlAuthMiddleware(cfg.ControlToken))
		r.Post("/player/seek", s.handleSeek)
		r.Post("/player/{action}", s.handleAction)
		r.Post("/episodes/{id}/play", s.handlePlayEpisode)
		r.Post("/episodes/{index}/play-list", s.handlePlayFrom)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/player", s.handlePlayer)
		r.Get("/episodes", s.handleEpisodes)
		r.Get("/episodes/{id}", s.handleEpisode)
	})

	if images != nil {
		r.Get("/image", images.ServeHTTP)
	}

	return s, nil
}

// Mount attaches an additional handler, such as the Connect service, under
// pattern.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
