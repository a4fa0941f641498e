package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"support-chat-client/internal/chat"
	"support-chat-client/internal/env"
	"support-chat-client/internal/realtime"
	"support-chat-client/internal/rest"
	"support-chat-client/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "widget",
	Short: "Terminal support chat widget",
	RunE:  runWidget,
}

var (
	flagAPIURL      string
	flagSocketURL   string
	flagSessionFile string
	flagDebug       bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAPIURL, "api-url", env.GetOrDefault(env.APIBaseURL, env.DefaultAPIBaseURL), "support API base URL")
	flags.StringVar(&flagSocketURL, "ws-url", env.GetOrDefault(env.SocketURL, env.DefaultSocketURL), "support websocket URL")
	flags.StringVar(&flagSessionFile, "session-file", env.Get(env.SessionFile), "session token file (defaults to the user config dir)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWidget(cmd *cobra.Command, args []string) error {
	level := zerolog.WarnLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	sessionPath := flagSessionFile
	if sessionPath == "" {
		p, err := session.DefaultPath()
		if err != nil {
			return err
		}
		sessionPath = p
	}
	store := session.NewStore(sessionPath)

	api := rest.NewClient(flagAPIURL, rest.WithLogger(logger))

	channel, err := realtime.Dial(realtime.Options{
		URL:    flagSocketURL,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer channel.Close()

	view := newWidgetView(os.Stdin, os.Stdout)
	ctrl := chat.NewController(channel, api, store,
		chat.WithLogger(logger),
		chat.WithOnChange(view.onChange),
		chat.WithOnNotice(view.onNotice),
	)
	view.ctrl = ctrl

	ctrl.Attach()
	defer ctrl.Detach()

	return view.run(cmd.Context())
}
