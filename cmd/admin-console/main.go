package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"support-chat-client/internal/admin"
	"support-chat-client/internal/env"
	"support-chat-client/internal/realtime"
	"support-chat-client/internal/rest"
)

var rootCmd = &cobra.Command{
	Use:   "admin-console",
	Short: "Terminal operator console for support chats",
	RunE:  runConsole,
}

var (
	flagAPIURL       string
	flagSocketURL    string
	flagEmail        string
	flagPassword     string
	flagPollInterval time.Duration
	flagDebug        bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAPIURL, "api-url", env.GetOrDefault(env.APIBaseURL, env.DefaultAPIBaseURL), "support API base URL")
	flags.StringVar(&flagSocketURL, "ws-url", env.GetOrDefault(env.SocketURL, env.DefaultSocketURL), "support websocket URL")
	flags.StringVar(&flagEmail, "email", env.Get(env.AdminEmail), "operator email")
	flags.StringVar(&flagPassword, "password", env.Get(env.AdminPassword), "operator password")
	flags.DurationVar(&flagPollInterval, "poll", 10*time.Second, "collection refresh interval")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	level := zerolog.WarnLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	view := newConsoleView(os.Stdin, os.Stdout)

	api := rest.NewClient(flagAPIURL,
		rest.WithLogger(logger),
		rest.WithUnauthorizedHook(func() {
			view.printf("* session expired, please log in again")
		}),
	)

	ctx := cmd.Context()
	operator, err := api.Login(ctx, flagEmail, flagPassword)
	if err != nil {
		return err
	}
	view.printf("* logged in as %s", operator.Name)

	channel, err := realtime.Dial(realtime.Options{
		URL:    flagSocketURL,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer channel.Close()

	console := admin.NewConsole(channel, api,
		admin.WithLogger(logger),
		admin.WithOperator(operator),
		admin.WithOnChange(view.onChange),
	)
	view.console = console

	console.Attach()
	defer console.Detach()

	poller := console.StartPolling(ctx, flagPollInterval)
	defer poller.Stop()

	if _, err := console.LoadSettings(ctx); err != nil {
		view.printf("* could not load settings: %v", err)
	}

	defer func() { _ = api.Logout(ctx) }()
	return view.run(ctx)
}
