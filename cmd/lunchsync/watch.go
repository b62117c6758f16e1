package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Alwanly/lunch-match-sync/internal/client/nudge"
	"github.com/Alwanly/lunch-match-sync/internal/client/repository"
	"github.com/Alwanly/lunch-match-sync/internal/client/usecase"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/poll"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll for a match, then its chat, until interrupted",
	Long: `watch runs the match/chat flow and prints matches, new messages and cancellations.
Send SIGUSR1 to pause polling (hidden) and SIGUSR2 to resume (visible).`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerFromEnv(appName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	visibility := poll.NewObserver()
	client := repository.NewClient(cfg, log)

	uc, err := usecase.NewUseCase(client, cfg, visibility, newPrinter(cmd.OutOrStdout()), log)
	if err != nil {
		return err
	}
	defer uc.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := uc.StartPolling(ctx); err != nil {
		return err
	}
	log.Info("watching",
		logger.String("api_url", cfg.BaseURL),
		logger.String("strategy", cfg.CacheStrategy),
		logger.Duration("match_interval", cfg.Poll.MatchInterval),
		logger.Duration("chat_interval", cfg.Poll.ChatInterval),
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		forwardVisibility(gCtx, visibility, log)
		return nil
	})

	if cfg.Nudge.Enabled {
		g.Go(func() error {
			runNudges(gCtx, cfg.Nudge.Redis, uc, nudge.Config{
				Channel:  cfg.Nudge.Channel,
				UserID:   cfg.UserID,
				MinDelay: cfg.Nudge.MinDelay,
				Burst:    cfg.Nudge.Burst,
			}, log)
			return nil
		})
	}

	<-ctx.Done()
	log.Info("stopping")
	if err := uc.StopPolling(); err != nil {
		return err
	}
	return g.Wait()
}

// forwardVisibility maps SIGUSR1/SIGUSR2 to hidden/visible until ctx is done.
func forwardVisibility(ctx context.Context, o *poll.Observer, log *logger.CanonicalLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			visible := sig == syscall.SIGUSR2
			log.Info("visibility changed", logger.Bool(logger.FieldVisible, visible))
			o.SetVisible(visible)
		}
	}
}

// runNudges subscribes to push events. Failures only cost latency, so they
// are logged and polling carries on.
func runNudges(ctx context.Context, redisCfg pubsub.RedisConfig, target nudge.Target, cfg nudge.Config, log *logger.CanonicalLogger) {
	bus, err := pubsub.NewRedisPubSub(redisCfg, log)
	if err != nil {
		log.WithError(err).Warn("push events unavailable, polling only", logger.String("addr", redisCfg.Addr()))
		return
	}
	defer bus.Close()

	listener, err := nudge.NewListener(bus, target, cfg, log)
	if err != nil {
		log.WithError(err).Warn("push events disabled")
		return
	}
	if err := listener.Run(ctx); err != nil {
		log.WithError(err).Warn("push event subscription ended")
	}
}
