package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ancs/internal/session"
	"github.com/srg/ancs/pkg/config"
	"github.com/srg/ancs/pkg/connection"
	"golang.org/x/term"
)

var listenCmd = &cobra.Command{
	Use:   "listen <phone-address>",
	Short: "Stream notifications from a paired phone",
	Long: `Connects to the phone, subscribes to ANCS and prints every notification as it is
added, modified or removed. The phone must already be bonded with this computer.

Examples:
  # Human-readable stream
  ancs listen 5C:F3:70:AA:BB:CC

  # JSON lines for another program
  ancs listen 5C:F3:70:AA:BB:CC --format json

  # Answer or dismiss notifications from a prompt
  ancs listen 5C:F3:70:AA:BB:CC --interactive

  # Settings from a file
  ancs listen 5C:F3:70:AA:BB:CC --config ancs.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runListen,
}

var (
	listenConfigPath  string
	listenFormat      string
	listenTimeout     time.Duration
	listenInteractive bool
	listenNoColor     bool
)

func init() {
	listenCmd.Flags().StringVar(&listenConfigPath, "config", "", "YAML configuration file")
	listenCmd.Flags().StringVar(&listenFormat, "format", config.FormatText, "Output format: text, json, yaml or cbor")
	listenCmd.Flags().DurationVar(&listenTimeout, "timeout", 30*time.Second, "Connection timeout")
	listenCmd.Flags().BoolVarP(&listenInteractive, "interactive", "i", false, "Read action commands from a prompt")
	listenCmd.Flags().BoolVar(&listenNoColor, "no-color", false, "Disable colored text output")
}

// loadListenConfig reads --config and applies the flags the user set explicitly.
func loadListenConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = logrus.WarnLevel
	if listenConfigPath != "" {
		loaded, err := config.Load(listenConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("format") || listenConfigPath == "" {
		cfg.OutputFormat = listenFormat
	}
	if cmd.Flags().Changed("timeout") || listenConfigPath == "" {
		cfg.ConnectTimeout = listenTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runListen(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadListenConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	out := cmd.OutOrStdout()
	var rl *readline.Instance
	if listenInteractive {
		rl, err = readline.NewEx(&readline.Config{
			Prompt:          "ancs> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to start prompt: %w", err)
		}
		defer rl.Close()
		// Keeps the prompt line intact while notifications are printed
		out = rl.Stdout()
	}

	colors := cfg.OutputFormat == config.FormatText && !listenNoColor && isTerminal(cmd.OutOrStdout())
	printer, err := NewPrinter(out, cfg.OutputFormat, uint32(cfg.PrintBuffer), colors)
	if err != nil {
		return err
	}
	if err := printer.Start(); err != nil {
		return err
	}
	defer func() {
		if err := printer.Stop(); err != nil {
			logger.WithError(err).Warn("Output printer did not stop cleanly")
		}
		if m := printer.Metrics(); m.Overwritten > 0 || m.Errors > 0 {
			logger.WithFields(logrus.Fields{
				"printed":     m.Printed,
				"overwritten": m.Overwritten,
				"errors":      m.Errors,
			}).Warn("Some notifications were not printed")
		}
	}()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "Connecting", "Listening")
	progress.Start()
	defer progress.Stop()
	setPhase := progress.Callback()

	conn := connection.NewConnection(logger)
	opts := connection.DefaultConnectOptions(address)
	opts.ConnectTimeout = cfg.ConnectTimeout
	if err := conn.Connect(ctx, opts); err != nil {
		return err
	}
	defer func() {
		if err := conn.Disconnect(); err != nil && !errors.Is(err, connection.ErrNotConnected) {
			logger.WithError(err).Debug("Disconnect reported an error")
		}
	}()

	setPhase("Subscribing")
	sess := session.New(conn, printer.Handle, cfg, logger)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sess.Stop() }()

	setPhase("Listening")
	if listenInteractive {
		fmt.Fprintln(cmd.ErrOrStderr(), "Listening for notifications. Type 'help' for commands, 'quit' to stop.")
		prompt := &actionPrompt{target: sess, out: rl.Stdout()}
		go prompt.run(ctx, rl, cancel)
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Listening for notifications. Press Ctrl+C to stop...")
	}

	return waitListen(ctx, sess.Done())
}

// waitListen blocks until the user stops listening or the session loop ends on its own.
func waitListen(ctx context.Context, sessionDone <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sessionDone:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrConnectionLost
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
