// Package main runs a Tox client session with a local presentation bridge.
//
// The process loads settings, starts the session for the selected profile,
// serves the WebSocket bridge and runs until interrupted. On SIGINT or
// SIGTERM the profile, settings and message store are saved and closed
// before exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient"
	"github.com/opd-ai/toxclient/bridge"
	"github.com/opd-ai/toxclient/config"
	"github.com/opd-ai/toxclient/factory"
)

// CLIConfig holds command-line options. Flags override the settings file.
type CLIConfig struct {
	profile         string
	configPath      string
	envFile         string
	logLevel        string
	logFile         string
	simulate        bool
	listen          string
	shutdownTimeout time.Duration
	help            bool
}

func parseCLIFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.profile, "profile", "", "Profile to load (default: last used, or a new one)")
	flag.StringVar(&cli.profile, "p", "", "Shorthand for -profile")
	flag.StringVar(&cli.configPath, "config", "", "Settings file (default: config.json in the data directory)")
	flag.StringVar(&cli.envFile, "env-file", ".env", "Environment file loaded before settings")

	flag.StringVar(&cli.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	flag.StringVar(&cli.logFile, "log-file", "", "Log file path (default: stderr)")

	flag.BoolVar(&cli.simulate, "simulate", false, "Use the simulated engine (no network traffic)")
	flag.StringVar(&cli.listen, "listen", "", "Bridge listen address, overrides settings; \"off\" disables the bridge")
	flag.DurationVar(&cli.shutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed for saving state on exit")

	flag.BoolVar(&cli.help, "help", false, "Show help message")

	flag.Parse()
	return cli
}

func printUsage() {
	fmt.Println("Tox desktop client core")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Printf("  %s_* variables override settings, e.g. %s_LAST_USED_PROFILE, %s_FILE_TRANSFERS_REJECT_FILES\n",
		config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Open the last used profile\n")
	fmt.Printf("  %s\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Open a named profile without networking, verbose\n")
	fmt.Printf("  %s -p work -simulate -log-level DEBUG\n", os.Args[0])
}

func validateCLIConfig(cli *CLIConfig) error {
	if _, err := logrus.ParseLevel(strings.ToLower(cli.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", cli.logLevel)
	}
	if cli.shutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v (must be positive)", cli.shutdownTimeout)
	}
	return nil
}

// setupLogging configures logrus from the CLI options. The returned
// function closes the log file, if any.
func setupLogging(cli *CLIConfig) (func(), error) {
	level, err := logrus.ParseLevel(strings.ToLower(cli.logLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cli.logLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cli.logFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(cli.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() { f.Close() }, nil
}

func loadConfig(cli *CLIConfig) (*config.Config, error) {
	if err := config.LoadDotEnv(cli.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return nil, err
	}
	if cli.simulate {
		cfg.UseSimulation = true
	}
	switch cli.listen {
	case "":
	case "off":
		cfg.Bridge.Listen = ""
	default:
		cfg.Bridge.Listen = cli.listen
	}
	return cfg, nil
}

// setupSignalHandling cancels ctx on SIGINT or SIGTERM.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Received signal, shutting down")
		cancel()
	}()
}

func run(cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	hub := bridge.NewHub()
	client, err := toxclient.New(toxclient.Options{
		Config:   cfg,
		Profile:  cli.profile,
		Factory:  factory.NewEngineFactory(cfg.UseSimulation),
		Notifier: hub,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	if err := client.Start(ctx); err != nil {
		return err
	}

	go hub.Run(ctx)

	serverErr := make(chan error, 1)
	if cfg.Bridge.Listen != "" {
		server := bridge.NewServer(cfg.Bridge.Listen, hub, client)
		go func() { serverErr <- server.ListenAndServe(ctx) }()
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- client.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("bridge: %w", err)
		}
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("event loop: %w", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cli.shutdownTimeout)
	defer shutdownCancel()
	if err := client.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func main() {
	cli := parseCLIFlags()
	if cli.help {
		printUsage()
		os.Exit(0)
	}

	if err := validateCLIConfig(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogging(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cli); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Error("Client exited with error")
		closeLog()
		os.Exit(1)
	}
}
