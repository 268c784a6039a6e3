package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ridepay/internal/config"
	"ridepay/internal/poller"
)

var Version = "dev"

type options struct {
	server   string
	interval time.Duration
	timeout  time.Duration
	verbose  bool
}

func main() {
	cfg := config.Load()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "paycli",
		Short:         "paycli - pay for ride bookings with M-Pesa and follow their status",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", cfg.Poller.ServerURL, "ridepay server URL")
	rootCmd.PersistentFlags().DurationVar(&opts.interval, "interval", cfg.Poller.Interval, "status polling interval")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", cfg.Poller.Timeout, "give up waiting for the payment after this long")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every polling cycle")

	// Add subcommands
	rootCmd.AddCommand(payCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *options) client() *poller.APIClient {
	return poller.NewAPIClient(o.server, 30*time.Second)
}

func (o *options) logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if o.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
