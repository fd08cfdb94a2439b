package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/adapters/channel"
	"github.com/randomio/pair/internal/adapters/directory"
	"github.com/randomio/pair/internal/adapters/media"
	"github.com/randomio/pair/internal/app"
	"github.com/randomio/pair/internal/config"
	"github.com/randomio/pair/internal/domain"
)

const helpText = `pair - anonymous one-on-one random chat

Commands:
  /next   leave the current stranger and match a new one
  /quit   exit
  <text>  send a message to the current stranger
`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	self := domain.NewParticipantID()
	wsBase := wsURL(cfg.Client.DirectoryURL)

	ctrl := app.NewController(
		self,
		directory.NewClient(cfg.Client.DirectoryURL),
		channel.NewTransport(wsBase),
		media.NewTransport(wsBase, cfg.Client.STUNServers),
	)
	defer ctrl.Close()

	fmt.Print(helpText)
	fmt.Println("looking for a stranger...")
	if err := ctrl.Next(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("initial match failed")
	}
	printStatus(ctrl.Snapshot())

	go renderLoop(ctrl)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/next":
			fmt.Println("looking for a new stranger...")
			if err := ctrl.Next(context.Background()); err != nil {
				fmt.Printf("match failed: %v\n", err)
				continue
			}
			printStatus(ctrl.Snapshot())
		default:
			if err := ctrl.Send(context.Background(), line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}

// renderLoop is the presentation side: it polls the controller snapshot and
// prints transcript entries it has not shown yet. A rematch shrinks the
// transcript, which resets the cursor.
func renderLoop(ctrl *app.Controller) {
	shown := 0
	remoteSeen := false
	for {
		time.Sleep(300 * time.Millisecond)
		v := ctrl.Snapshot()
		if len(v.Transcript) < shown {
			shown = 0
			remoteSeen = false
		}
		for _, m := range v.Transcript[shown:] {
			who := "them"
			if v.Mine(m) {
				who = "you"
			}
			fmt.Printf("[%s] %s\n", who, m.Text)
		}
		shown = len(v.Transcript)

		if !remoteSeen && v.RemoteVideo != nil {
			remoteSeen = true
			fmt.Printf("* stranger's video is live (%s)\n", v.RemoteVideo.ID())
		}
	}
}

func printStatus(v app.View) {
	if v.Room == nil {
		fmt.Println("not paired")
		return
	}
	fmt.Printf("connected to room %s as %q\n", v.Room.ID, v.DisplayName)
	if v.LocalTrack != nil {
		fmt.Println("* your camera is publishing")
	} else {
		fmt.Println("* no camera found, receive-only")
	}
}

// wsURL derives the websocket endpoint base from the directory's HTTP URL.
func wsURL(httpBase string) string {
	switch {
	case strings.HasPrefix(httpBase, "https://"):
		return "wss://" + strings.TrimPrefix(httpBase, "https://")
	case strings.HasPrefix(httpBase, "http://"):
		return "ws://" + strings.TrimPrefix(httpBase, "http://")
	default:
		return httpBase
	}
}
