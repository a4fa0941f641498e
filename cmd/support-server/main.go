package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"support-chat-client/internal/env"
	"support-chat-client/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "support-server",
	Short: "Local support backend for the chat widget and admin console",
	RunE:  runServer,
}

var (
	flagListenAddr    string
	flagAdminName     string
	flagAdminEmail    string
	flagAdminPassword string
	flagSecret        string
	flagDataPath      string
	flagRedisAddr     string
	flagRedisPass     string
	flagDebug         bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagListenAddr, "listen", env.GetOrDefault(env.ListenAddr, env.DefaultListenAddr), "address to listen on")
	flags.StringVar(&flagAdminName, "admin-name", "Support", "seeded operator display name")
	flags.StringVar(&flagAdminEmail, "admin-email", env.GetOrDefault(env.AdminEmail, "admin@localhost"), "seeded operator email")
	flags.StringVar(&flagAdminPassword, "admin-password", env.GetOrDefault(env.AdminPassword, "changeme"), "seeded operator password")
	flags.StringVar(&flagSecret, "secret", env.GetOrDefault(env.AdminSecret, "local-dev-secret"), "session signing secret")
	flags.StringVar(&flagDataPath, "data-path", env.Get(env.DataPath), "optional directory to persist conversations via PebbleDB")
	flags.StringVar(&flagRedisAddr, "redis", env.Get(env.ChatRedisURL), "optional Redis address for multi-instance fan-out")
	flags.StringVar(&flagRedisPass, "redis-pass", env.Get(env.ChatRedisPass), "Redis password")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("execute support-server command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	srv, err := server.New(server.Config{
		ListenAddr:    flagListenAddr,
		AdminName:     flagAdminName,
		AdminEmail:    flagAdminEmail,
		AdminPassword: flagAdminPassword,
		Secret:        flagSecret,
		DataPath:      flagDataPath,
		RedisAddr:     flagRedisAddr,
		RedisPass:     flagRedisPass,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		_ = srv.Close()
		return err
	case sig := <-sigc:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return srv.Close()
	}
}
