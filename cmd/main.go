package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"iurynex-aura/pkg/config"
	"iurynex-aura/pkg/logger"
	"iurynex-aura/pkg/system"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	logLevel   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "Aura, the IURYNEX legal assistant, by text and live voice",
	Long: `Aura answers questions about Ecuadorian law.

Without a subcommand it starts the console chat. "aura serve" also opens a
browser front-end on the local network.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadEnv()
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		return cfg.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Console chat with /live for voice",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser front-end",
	RunE: func(cmd *cobra.Command, args []string) error {
		withREPL, _ := cmd.Flags().GetBool("repl")
		return runServe(cmd.Context(), withREPL)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded when LOG_LEVEL is not set")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	serveCmd.Flags().Bool("repl", false, "also run the console chat")

	rootCmd.AddCommand(chatCmd, serveCmd)
}

// loadEnv loads the dotenv file unless the environment is already set up.
func loadEnv() {
	if os.Getenv("LOG_LEVEL") != "" {
		return
	}
	if err := system.LoadEnv(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", envFile, err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("aura failed")
		os.Exit(1)
	}
}

func initLogger(console bool) {
	logger.InitLogger(cfg.LogLevel, console, os.Stderr)
}
