package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danpark-dev/mafiasync/internal/channel"
	"github.com/danpark-dev/mafiasync/internal/config"
	"github.com/danpark-dev/mafiasync/internal/engine"
	"github.com/danpark-dev/mafiasync/internal/game"
	"github.com/danpark-dev/mafiasync/internal/gameclient"
	"github.com/danpark-dev/mafiasync/internal/notes"
	"github.com/danpark-dev/mafiasync/internal/reconcile"
)

// Headless session client: mirrors one game session and logs everything the
// server pushes. Useful for watching a game from the terminal and for
// exercising the engine against a live server.
func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(getEnv("MAFIA_CONFIG", "mafiasync.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	sessionID := getEnv("MAFIA_SESSION_ID", "")
	participantID := getEnv("MAFIA_PARTICIPANT_ID", "")
	if sessionID == "" || participantID == "" {
		log.Fatal().Msg("MAFIA_SESSION_ID and MAFIA_PARTICIPANT_ID are required")
	}

	var store notes.Store
	if cfg.Notes.FilePath != "" {
		fileStore, err := notes.NewFileStore(cfg.Notes.FilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open notes store")
		}
		store = fileStore
	} else {
		store = notes.NewMemoryStore()
	}

	client := gameclient.NewClient(cfg.Server.BaseURL)
	client.SetTimeout(cfg.RequestTimeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ended := make(chan string, 1)

	eng := engine.New(cfg, client, store, sessionID, participantID, clockwork.NewRealClock(), engine.Callbacks{
		OnPhaseChange: func(session game.Session) {
			log.Info().
				Str("phase", string(session.CurrentPhase)).
				Int("day", session.DayCount).
				Int("duration_sec", session.PhaseDurationSeconds).
				Msg("phase changed")
		},
		OnChat: func(msg game.ChatMessage) {
			log.Info().
				Str("channel", string(msg.Channel)).
				Str("sender", msg.SenderName).
				Str("text", msg.Text).
				Msg("chat")
		},
		OnEvent: func(ev reconcile.Event) {
			log.Info().Str("kind", string(ev.Kind)).Msg(ev.Message)
		},
		OnConnectionState: func(name string, state channel.State) {
			log.Info().Str("channel", name).Str("state", string(state)).Msg("connection state")
		},
		OnEnded: func(winner string) {
			select {
			case ended <- winner:
			default:
			}
		},
	})

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start session engine")
	}
	defer eng.Close()

	log.Info().
		Str("session_id", sessionID).
		Str("server", cfg.Server.BaseURL).
		Msg("watching session, ctrl-c to leave")

	select {
	case <-ctx.Done():
		log.Info().Msg("leaving session")
	case winner := <-ended:
		log.Info().Str("winner", winner).Msg("session finished")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
