package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemchat/backend/internal/config"
	"github.com/zhouzirui/gemchat/backend/internal/events"
	"github.com/zhouzirui/gemchat/backend/internal/handler"
	"github.com/zhouzirui/gemchat/backend/internal/logging"
	"github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/service/completion"
	"github.com/zhouzirui/gemchat/backend/internal/service/conversation"
	"github.com/zhouzirui/gemchat/backend/internal/store/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("gemchat backend stopped")
		stop()
		os.Exit(1)
	}
}

// run owns every resource so that its deferred Close calls fire on both success and failure.
func run(ctx context.Context) error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using the process environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "open transcript store")
	}
	defer store.Close()

	bus := events.NewBus(logging.NewWatermill(log.Logger))
	defer bus.Close()

	if cfg.Events.NatsURL != "" {
		sink, err := events.NewNATSSink(cfg.Events.NatsURL)
		if err != nil {
			return errors.Wrap(err, "connect to NATS")
		}
		defer sink.Close()
		if err := sink.Forward(ctx, bus, events.TopicTranscriptAppended, events.SubjectTranscriptAppended); err != nil {
			return errors.Wrap(err, "forward transcript events")
		}
		log.Info().Str("subject", events.SubjectTranscriptAppended).Msg("forwarding transcript events to NATS")
	}

	// Initialize completion service
	completer, err := completion.New(ctx, cfg.Completion)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.Completion.Provider).Msg("completion unavailable, every reply will carry the failure text")
		initErr := err
		completer = completion.CompleterFunc(func(context.Context, string) (string, error) {
			return "", initErr
		})
	} else {
		log.Info().Str("provider", cfg.Completion.Provider).Msg("completion service initialized")
	}
	if closer, ok := completer.(io.Closer); ok {
		defer closer.Close()
	}

	provider := auth.NewProvider(bus)
	chatService := chat.NewService(store)
	registry := conversation.NewRegistry(chatService, conversation.Deps{
		Completer: completer,
		Store:     store,
		Bus:       bus,
	})

	router := handler.NewRouter(provider, chatService, registry)

	return startServer(ctx, cfg.Server, router)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (transcript.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("DATABASE_URL not set, keeping transcripts in memory")
		return transcript.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := transcript.NewPostgresStore(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("transcripts stored in Postgres")
	return store, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("gemchat backend listening")
	return errors.Wrap(runServer(ctx, srv), "serve http")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
