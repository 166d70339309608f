// Package main provides the player CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/podcastr/internal/api/connect"
	"github.com/osa030/podcastr/internal/app/notification"
)

var (
	app    = kingpin.New("podcastr-playercli", "podcastr player remote control")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set CONTROL_TOKEN env)").Envar("CONTROL_TOKEN").String()

	stateCmd    = app.Command("state", "Show the player state").Default()
	episodesCmd = app.Command("episodes", "List the episode catalog").Alias("ls")

	playCmd = app.Command("play", "Play a single episode")
	playID  = playCmd.Arg("episode-id", "Episode ID").Required().String()

	playFromCmd   = app.Command("play-from", "Play the catalog starting at an index")
	playFromIndex = playFromCmd.Arg("index", "Catalog index").Required().Int64()

	toggleCmd   = app.Command("toggle", "Play or pause")
	nextCmd     = app.Command("next", "Play the next episode")
	previousCmd = app.Command("previous", "Play the previous episode").Alias("prev")
	loopCmd     = app.Command("loop", "Toggle loop mode")
	shuffleCmd  = app.Command("shuffle", "Toggle shuffle mode")
	clearCmd    = app.Command("clear", "Stop and clear the player")

	seekCmd     = app.Command("seek", "Move playback to a position")
	seekSeconds = seekCmd.Arg("seconds", "Position in seconds").Required().Int64()

	subscribeCmd = app.Command("subscribe", "Follow player notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	var opts []connect.ClientOption
	if *token != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewControlTokenClientInterceptor(*token)))
	}
	client := apiconnect.NewPlayerClient(http.DefaultClient, *server, opts...)

	ctx := context.Background()

	var (
		msg *structpb.Struct
		err error
	)
	switch command {
	case stateCmd.FullCommand():
		msg, err = client.GetState(ctx)
	case episodesCmd.FullCommand():
		msg, err = client.ListEpisodes(ctx)
		if err == nil {
			printEpisodes(msg)
			return
		}
	case playCmd.FullCommand():
		msg, err = client.PlayEpisode(ctx, *playID)
	case playFromCmd.FullCommand():
		msg, err = client.PlayFrom(ctx, *playFromIndex)
	case toggleCmd.FullCommand():
		msg, err = client.TogglePlay(ctx)
	case nextCmd.FullCommand():
		msg, err = client.PlayNext(ctx)
	case previousCmd.FullCommand():
		msg, err = client.PlayPrevious(ctx)
	case loopCmd.FullCommand():
		msg, err = client.ToggleLoop(ctx)
	case shuffleCmd.FullCommand():
		msg, err = client.ToggleShuffle(ctx)
	case clearCmd.FullCommand():
		msg, err = client.Clear(ctx)
	case seekCmd.FullCommand():
		msg, err = client.Seek(ctx, *seekSeconds)
	case subscribeCmd.FullCommand():
		subscribe(ctx, client)
		return
	}

	if err != nil {
		fmt.Printf("Error [%s]: %v\n", connect.CodeOf(err), err)
		os.Exit(1)
	}
	printState(msg)
}

func subscribe(ctx context.Context, client *apiconnect.PlayerClient) {
	stream, err := client.SubscribeNotifications(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	for stream.Receive() {
		msg := stream.Msg()
		fmt.Printf("\n[Sequence: %d]\n", int64(msg.GetFields()[notification.SequenceField].GetNumberValue()))
		printState(msg)
	}

	if err := stream.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printState(msg *structpb.Struct) {
	f := msg.GetFields()
	if !f["has_episode"].GetBoolValue() {
		fmt.Println("Nothing playing")
		return
	}

	ep := f["episode"].GetStructValue().GetFields()
	status := "Paused"
	if f["is_playing"].GetBoolValue() {
		status = "Playing"
	}

	fmt.Printf("%s: %s\n", status, ep["title"].GetStringValue())
	fmt.Printf("  Members: %s\n", ep["members"].GetStringValue())
	fmt.Printf("  Progress: %s / %s\n", f["progress_text"].GetStringValue(), f["duration_text"].GetStringValue())
	fmt.Printf("  Position: %d of %d\n", int(f["index"].GetNumberValue())+1, int(f["total"].GetNumberValue()))
	fmt.Printf("  Loop: %v  Shuffle: %v\n", f["is_looping"].GetBoolValue(), f["is_shuffling"].GetBoolValue())
}

func printEpisodes(msg *structpb.Struct) {
	episodes := msg.GetFields()["episodes"].GetListValue().GetValues()
	fmt.Printf("Episodes (%d):\n", len(episodes))
	for i, v := range episodes {
		ep := v.GetStructValue().GetFields()
		fmt.Printf("  %3d  %-40s %s\n", i, ep["id"].GetStringValue(), ep["title"].GetStringValue())
	}
}
