// Package main provides the Spotify authorization tool. It prints a refresh
// token for the spotify catalog source.
package main

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/podcastr/internal/domain/episode"
	"github.com/osa030/podcastr/internal/infra/logger"
	"github.com/osa030/podcastr/internal/infra/spotify"
)

var (
	app          = kingpin.New("podcastr-auth", "Spotify authorization tool for podcastr")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	showURL      = app.Flag("show", "Show URL to fetch with the new token").String()
	market       = app.Flag("market", "Market used for the show check").Default("BR").String()
)

var donePage = template.Must(template.New("done").Parse(`<!DOCTYPE html>
<html>
<head><title>Podcastr - Autorização concluída</title></head>
<body style="font-family: Inter, sans-serif; background: #8257E5; color: #fff; text-align: center; padding-top: 20vh">
  <h1>Autorização concluída</h1>
  <p>Você já pode fechar esta janela e voltar ao terminal.</p>
</body>
</html>
`))

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := logger.Init(logger.Config{Output: "stderr"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopeUserReadPlaybackPosition),
	)

	state := uuid.NewString()
	tokens := make(chan *oauth2.Token, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("auth: state mismatch: got=%s", st)
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			zlog.Error().Err(err).Msg("auth: failed to get token")
			return
		}
		_ = donePage.Execute(w, nil)
		select {
		case tokens <- token:
		default:
		}
	})

	server := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", *port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Msgf("Failed to start callback server: %v", err)
		}
	}()

	fmt.Println("Open the following URL to authorize podcastr:")
	fmt.Println()
	fmt.Println(auth.AuthURL(state))
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	token := <-tokens

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error().Msgf("Failed to shutdown callback server: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Authorization Successful ===")
	fmt.Println()
	fmt.Println("Set the refresh token in .env:")
	fmt.Printf("SPOTIFY_REFRESH_TOKEN=%s\n", token.RefreshToken)

	if *showURL != "" {
		checkShow(token.RefreshToken)
	}
}

// checkShow fetches the newest episodes of --show with the new token.
func checkShow(refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		RefreshToken: refreshToken,
		Market:       *market,
	})
	if err != nil {
		zlog.Fatal().Msgf("Failed to create Spotify client: %v", err)
	}

	episodes, err := client.GetShowEpisodes(ctx, *showURL, 3)
	if err != nil {
		zlog.Fatal().Msgf("Failed to fetch show: %v", err)
	}

	fmt.Println()
	fmt.Printf("Latest episodes of %s:\n", *showURL)
	for _, ep := range episodes {
		fmt.Printf("  %s  %s (%s)\n", ep.PublishedAt.Format(time.DateOnly), ep.Title, episode.FormatDuration(ep.Duration))
	}
}
