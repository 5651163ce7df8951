// linkctl is a small driver around the linker: run a demo server on a
// channel, tail events as a client, or fire a single event at the server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"unixlink/pkg/config"
	"unixlink/pkg/linker"
	"unixlink/pkg/observability"
)

var (
	flagConfig  string
	flagChannel string
	flagDebug   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "linkctl",
		Short:         "Two-peer event bus over a local unix socket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagChannel, "channel", "", "channel name (overrides config)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable diagnostic logging")

	root.AddCommand(newServeCmd(), newListenCmd(), newSendCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagChannel != "" {
		cfg.Channel = flagChannel
	}
	if flagDebug {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("no channel configured (use --channel)")
	}
	return cfg, nil
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	var events []string
	var echo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a server that logs (and optionally echoes) events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			lk := linker.New(cfg)
			if !lk.Init(string(config.RoleServer), cfg.Channel) {
				return fmt.Errorf("failed to bind channel %q", cfg.Channel)
			}
			defer lk.Close()

			for _, ev := range events {
				ev := ev
				lk.Receive(ev, func(payload any) {
					logger.Info("event", zap.String("name", ev), zap.Any("payload", payload))
					if echo {
						lk.Send(ev, payload)
					}
				})
			}
			logger.Info("serving", zap.String("channel", cfg.Channel), zap.Strings("events", events))

			waitForSignal()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&events, "event", []string{"message"}, "event names to handle")
	cmd.Flags().BoolVar(&echo, "echo", false, "echo payloads back to all clients")
	return cmd
}

func newListenCmd() *cobra.Command {
	var event string
	var count int
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect as a client and print matching events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			lk := linker.New(cfg)
			if !lk.Init(string(config.RoleClient), cfg.Channel) {
				return fmt.Errorf("failed to connect to channel %q", cfg.Channel)
			}
			defer lk.Close()

			seen := make(chan struct{}, 64)
			lk.Receive(event, func(payload any) {
				b, _ := json.Marshal(payload)
				fmt.Printf("%s %s\n", event, b)
				seen <- struct{}{}
			})

			if count <= 0 {
				waitForSignal()
				return nil
			}
			for i := 0; i < count; i++ {
				<-seen
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&event, "event", "message", "event name to subscribe to")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 = run until interrupted)")
	return cmd
}

func newSendCmd() *cobra.Command {
	var linger time.Duration
	cmd := &cobra.Command{
		Use:   "send <event> [json-payload]",
		Short: "Connect as a client and send one event",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			var payload any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
					// not JSON, send the raw string
					payload = args[1]
				}
			}

			lk := linker.New(cfg)
			if !lk.Init(string(config.RoleClient), cfg.Channel) {
				return fmt.Errorf("failed to connect to channel %q", cfg.Channel)
			}
			defer lk.Close()

			if !lk.Send(args[0], payload) {
				return fmt.Errorf("send failed")
			}
			// give the peer a moment to react before tearing down
			time.Sleep(linger)
			return nil
		},
	}
	cmd.Flags().DurationVar(&linger, "linger", 200*time.Millisecond, "wait before closing the connection")
	return cmd
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
