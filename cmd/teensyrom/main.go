package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmcdole/teensyrom/internal/adapter"
	"github.com/mmcdole/teensyrom/internal/protocol"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+describeError(err)))
		os.Exit(1)
	}
}

// run executes one command line and always releases the app afterwards,
// including when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{v: viper.New()}
	rootCmd := c.rootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if c.app != nil {
		err = errors.Join(err, c.app.close())
	}
	return err
}

// cli holds state shared by every subcommand.
type cli struct {
	v       *viper.Viper
	cfgFile string
	app     *app
}

func (c *cli) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "teensyrom",
		Short:         "Control a TeensyROM cartridge over USB serial",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ~/.config/teensyrom/config.yaml)")
	flags.String("port", "", "serial port (default: auto-detect)")
	flags.String("storage", "sd", "storage to address (sd or usb)")
	flags.String("log-level", "INFO", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file, or - for stderr")

	// Bind flags to viper
	_ = c.v.BindPFlag("serial.port", flags.Lookup("port"))
	_ = c.v.BindPFlag("device.storage", flags.Lookup("storage"))
	_ = c.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("logging.file", flags.Lookup("log-file"))

	rootCmd.AddCommand(
		c.portsCmd(),
		c.pingCmd(),
		c.resetCmd(),
		c.lsCmd(),
		c.launchCmd(),
		c.subtuneCmd(),
		c.pauseCmd(),
		c.copyCmd(),
		c.sendCmd(),
		c.cacheAllCmd(),
		c.cacheCmd(),
		c.searchCmd(),
		c.randomCmd(),
		c.favoriteCmd(),
		c.watchCmd(),
	)
	return rootCmd
}

func (c *cli) init() error {
	cfg, err := adapter.LoadConfig(c.v, c.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, closer = adapter.NullLogger(), nil
	}
	slog.SetDefault(logger)
	logger.Info("starting teensyrom", "version", Version)

	c.app, err = newApp(cfg, logger, closer)
	return err
}

// describeError adds the device's diagnostic text to protocol failures.
func describeError(err error) string {
	var rejected *protocol.HandshakeRejectedError
	var timeout *protocol.HandshakeTimeoutError
	switch {
	case errors.As(err, &rejected):
		return fmt.Sprintf("device rejected %s", rejected.Stage) + diagnosticSuffix(rejected.Diagnostic)
	case errors.As(err, &timeout):
		return fmt.Sprintf("no response from device during %s (waited %s); is the cartridge busy?", timeout.Stage, timeout.Timeout)
	default:
		return err.Error()
	}
}

func diagnosticSuffix(d string) string {
	if d == "" {
		return ""
	}
	return ": " + d
}
