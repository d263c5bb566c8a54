// Package main is the entry point for the tendbot CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels"
	"tendbot/pkg/commands"
	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
	"tendbot/pkg/flow"
	"tendbot/pkg/interaction"
	"tendbot/pkg/logger"
	"tendbot/pkg/router"
	"tendbot/pkg/schedule"
	"tendbot/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "tendbot",
	Short: "tendbot - a multi-channel personal assistant bot",
	Long: `tendbot is a personal assistant bot that reaches you wherever you are:
Discord, Telegram, or plain email. It runs commands, guides multi-turn
check-ins, and schedules proactive prompts.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot in the foreground",
	Long: `Run the tendbot server with every enabled channel.

Examples:
  # Run with the default config (~/.tendbot/config.json)
  tendbot serve

  # Run with a specific config file
  tendbot serve -c /etc/tendbot/config.json

  # Run with debug logging
  tendbot serve -d`,
	Run: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetFullVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	serveCmd.Flags().BoolVarP(&debugMode, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	app := fx.New(
		fx.Supply(config.Params{ConfigPath: configPath, Debug: debugMode}),

		// Core modules
		config.Module,
		logger.Module,
		bus.Module,
		router.Module,
		commands.Module,
		flow.Module,
		delivery.Module,

		// Channel and pipeline modules
		channels.Module,
		interaction.Module,
		schedule.Module,

		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger, cm *channels.Manager, cfg *config.Config) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.Info("tendbot started",
						zap.String("version", version.GetVersion()),
						zap.String("bus", cfg.Bus.Type))

					enabled := make([]string, 0, 3)
					for _, ch := range cm.ListChannels() {
						if ch.IsEnabled() {
							enabled = append(enabled, ch.Name())
						}
					}
					if len(enabled) > 0 {
						log.Info("Active channels", zap.Strings("channels", enabled))
					} else {
						log.Warn("No channels enabled")
					}

					log.Info("Press Ctrl+C to stop")
					return nil
				},
			})
		}),
	)

	app.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
