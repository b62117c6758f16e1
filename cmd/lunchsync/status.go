package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alwanly/lunch-match-sync/internal/client/poller"
	"github.com/Alwanly/lunch-match-sync/internal/client/repository"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/swr"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch the current match and its messages once and print them as JSON",
	RunE:  runStatus,
}

type statusOutput struct {
	Match    models.MatchState `json:"match"`
	Messages []models.Message  `json:"messages,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewNop()
	client := repository.NewClient(cfg, log)
	timeout := 2 * cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out, err := fetchStatus(ctx, client, log)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// fetchStatus reads both resources through a cache store, the way the pollers do.
func fetchStatus(ctx context.Context, client repository.IClient, log *logger.CanonicalLogger) (statusOutput, error) {
	var out statusOutput

	matches := swr.NewStore[models.MatchState](swr.Options{Name: "status_match", Logger: log})
	defer matches.Close()
	matches.Register(poller.CurrentMatchKey, func(ctx context.Context) (models.MatchState, error) {
		state, err := client.GetCurrentMatch(ctx)
		if err != nil {
			return models.MatchState{}, err
		}
		return *state, nil
	})

	state, err := matches.Revalidate(ctx, poller.CurrentMatchKey)
	if err != nil {
		return out, fmt.Errorf("failed to fetch current match: %w", err)
	}
	out.Match = state

	id, ok := state.ID()
	if !ok {
		return out, nil
	}

	chats := swr.NewStore[[]models.Message](swr.Options{Name: "status_chat", Logger: log})
	defer chats.Close()
	key := poller.MessagesKey(id)
	chats.Register(key, func(ctx context.Context) ([]models.Message, error) {
		return client.GetMessages(ctx, id)
	})

	msgs, err := chats.Revalidate(ctx, key)
	if err != nil {
		return out, fmt.Errorf("failed to fetch messages: %w", err)
	}
	out.Messages = msgs
	return out, nil
}
