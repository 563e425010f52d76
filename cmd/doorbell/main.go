// Command doorbell watches the doorbell button, drives the bell relay and
// tells Web Push subscribers and Home Assistant when someone rings.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/doorbell/internal/config"
	"github.com/sweeney/doorbell/internal/gpio"
	"github.com/sweeney/doorbell/internal/logic"
	"github.com/sweeney/doorbell/internal/push"
	"github.com/sweeney/doorbell/internal/subscription"
)

type rootFlags struct {
	envFile  string
	logLevel string
	httpAddr string
	mock     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:          "doorbell",
		Short:        "Doorbell button to relay, Web Push and Home Assistant bridge",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", ".env", "Environment file read before the process environment")
	pf.StringVar(&f.logLevel, "log-level", "", "Override LOG_LEVEL")
	pf.StringVar(&f.httpAddr, "http", "", "Override HTTP_ADDR")
	pf.BoolVar(&f.mock, "mock", false, "Use a simulated button and relay (overrides GPIO_MOCK)")

	root.AddCommand(serveCmd(&f))
	root.AddCommand(printStateCmd(&f))
	root.AddCommand(vapidKeysCmd())
	root.AddCommand(subscriptionsCmd(&f))
	return root
}

// loadConfig reads the env file and environment, applies flag overrides and
// configures logging.
func loadConfig(cmd *cobra.Command, f *rootFlags) (*config.Config, error) {
	if err := config.LoadEnvFile(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = f.httpAddr
	}
	if flags.Changed("mock") {
		cfg.Mock = f.mock
	}

	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// --------------------------------------------------------------------------
// serve
// --------------------------------------------------------------------------

func serveCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the doorbell daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := run(cmd.Context(), cfg); err != nil {
				log.WithError(err).Error("fatal")
				return err
			}
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// print-state
// --------------------------------------------------------------------------

func printStateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the current button level and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			input, err := openInput(cfg)
			if err != nil {
				return err
			}
			defer input.Close()
			return printState(cmd.OutOrStdout(), input, cfg.Polarity())
		},
	}
}

func printState(w io.Writer, input gpio.Input, polarity logic.Polarity) error {
	level, err := input.Read()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	state := "released"
	if polarity.Pressed(level) {
		state = "pressed"
	}
	_, err = fmt.Fprintf(w, "button: %s (%s)\n", level, state)
	return err
}

// --------------------------------------------------------------------------
// vapid-keys
// --------------------------------------------------------------------------

func vapidKeysCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair in .env format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := push.GenerateCredentials(subject)
			if err != nil {
				return err
			}
			return writeCredentials(cmd.OutOrStdout(), creds)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "mailto:admin@example.com", "Contact written as VAPID_SUBJECT")
	return cmd
}

func writeCredentials(w io.Writer, creds push.Credentials) error {
	_, err := fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\nVAPID_SUBJECT=%s\n",
		creds.PublicKey, creds.PrivateKey, creds.Subject)
	return err
}

// --------------------------------------------------------------------------
// subscriptions
// --------------------------------------------------------------------------

func subscriptionsCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Inspect stored push subscriptions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored subscription endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			store, err := subscription.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()
			return listSubscriptions(cmd.Context(), cmd.OutOrStdout(), store)
		},
	})
	return cmd
}

func listSubscriptions(ctx context.Context, w io.Writer, store subscription.Store) error {
	subs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, s := range subs {
		if _, err := fmt.Fprintln(w, s.Endpoint); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "%d subscription(s)\n", len(subs))
	return err
}
