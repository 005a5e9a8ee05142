package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/gemchat/backend/internal/config"
	"github.com/zhouzirui/gemchat/backend/internal/events"
	"github.com/zhouzirui/gemchat/backend/internal/logging"
	"github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/service/completion"
	"github.com/zhouzirui/gemchat/backend/internal/service/conversation"
	"github.com/zhouzirui/gemchat/backend/internal/store/transcript"
)

type testerSettings struct {
	text     string
	provider string
	timeout  time.Duration
	watch    bool
	logLevel string
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file, using the process environment only")
	}

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	s := &testerSettings{}
	cmd := &cobra.Command{
		Use:   "chattester",
		Short: "Send one message through the configured completion provider and print the stored transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTester(cmd.Context(), s)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&s.text, "text", "", "message to send")
	cmd.Flags().StringVar(&s.provider, "provider", "", "completion provider override (gemini, ark, openai)")
	cmd.Flags().DurationVar(&s.timeout, "timeout", 60*time.Second, "overall deadline")
	cmd.Flags().BoolVar(&s.watch, "watch", false, "print every view change to stderr")
	cmd.Flags().StringVar(&s.logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func runTester(ctx context.Context, s *testerSettings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(s.logLevel, "console")
	if s.provider != "" {
		cfg.Completion.Provider = s.provider
	}

	completer, err := completion.New(ctx, cfg.Completion)
	if err != nil {
		return errors.Wrap(err, "completion provider")
	}

	var store transcript.Store = transcript.NewMemoryStore()
	if cfg.Store.DatabaseURL != "" {
		pg, err := transcript.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		store = pg
	}
	defer store.Close()

	bus := events.NewBus(logging.NewWatermill(log.Logger))
	defer bus.Close()

	session, err := auth.NewProvider(bus).SignInAnonymously(ctx)
	if err != nil {
		return err
	}

	chats := chat.NewService(store)
	created, err := chats.Create(ctx, session.Identity.UID)
	if err != nil {
		return err
	}

	registry := conversation.NewRegistry(chats, conversation.Deps{Completer: completer, Store: store, Bus: bus})
	conv, release, err := registry.Acquire(ctx, session.Identity.UID, created.ID)
	if err != nil {
		return err
	}
	defer release()

	if s.watch {
		views, stopWatch := conv.Watch()
		defer stopWatch()
		go func() {
			for v := range views {
				fmt.Fprintf(os.Stderr, "[%s] %d messages\n", v.State, len(v.Messages))
			}
		}()
	}

	started := time.Now()
	outcome, err := conv.Submit(ctx, s.text)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "status=%s elapsed=%s\n", outcome.Status, time.Since(started).Round(time.Millisecond))
	if outcome.Err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", outcome.Err)
	}

	stored, err := chats.Get(ctx, session.Identity.UID, created.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stored)
}
