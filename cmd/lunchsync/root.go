package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alwanly/lunch-match-sync/internal/config"
)

const (
	appName    = "lunchsync"
	appVersion = "0.1.0"
)

type flags struct {
	configPath    string
	baseURL       string
	token         string
	userID        string
	strategy      string
	matchInterval time.Duration
	chatInterval  time.Duration
	nudge         bool
}

var (
	cliFlags flags
	rootCmd  = &cobra.Command{
		Use:           appName,
		Short:         "Keep lunch match and chat state in sync from a terminal",
		Long:          `lunchsync polls the lunch API for a match, then for the match's chat, and prints what changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cliFlags.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&cliFlags.baseURL, "api-url", "", "Lunch API base URL")
	pf.StringVar(&cliFlags.token, "token", "", "Bearer token")
	pf.StringVar(&cliFlags.userID, "user-id", "", "User id, required for push nudges")
	pf.StringVar(&cliFlags.strategy, "strategy", "", "Cache strategy: none, bridge or delegated")
	pf.DurationVar(&cliFlags.matchInterval, "match-interval", 0, "Match polling interval")
	pf.DurationVar(&cliFlags.chatInterval, "chat-interval", 0, "Chat polling interval")
	pf.BoolVar(&cliFlags.nudge, "nudge", false, "Subscribe to push events over Redis")

	rootCmd.AddCommand(watchCmd, statusCmd, versionCmd)
}

// loadConfig layers defaults, the config file, env and then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(cliFlags.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.ClientConfig) {
	changed := cmd.Flags().Changed
	if changed("api-url") {
		cfg.BaseURL = cliFlags.baseURL
	}
	if changed("token") {
		cfg.Token = cliFlags.token
	}
	if changed("user-id") {
		cfg.UserID = cliFlags.userID
	}
	if changed("strategy") {
		cfg.CacheStrategy = cliFlags.strategy
	}
	if changed("match-interval") {
		cfg.Poll.MatchInterval = cliFlags.matchInterval
	}
	if changed("chat-interval") {
		cfg.Poll.ChatInterval = cliFlags.chatInterval
	}
	if changed("nudge") {
		cfg.Nudge.Enabled = cliFlags.nudge
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
