package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/confessly/internal/app"
	"github.com/clawinfra/confessly/internal/config"
	"github.com/clawinfra/confessly/internal/logging"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

const defaultConfigPath = "confessly.json"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	configPath, subCmd, subArgs := splitArgs(args)

	switch subCmd {
	case "", "run":
	case "queue":
		return queueCommand(subArgs, configPath, stdout, stderr)
	case "enqueue":
		return enqueueCommand(subArgs, configPath, stdout, stderr)
	case "inspect":
		return inspectCommand(configPath, stderr)
	case "version":
		printVersion(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", subCmd)
		fmt.Fprintln(stderr, "Available commands: run, queue, enqueue, inspect, version")
		return 1
	}

	fs := flag.NewFlagSet("confessly", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", defaultConfigPath, "Path to config file (.json, .yaml or .toml)")
	showVersion := fs.Bool("version", false, "Show version")
	if err := fs.Parse(subArgs); err != nil {
		return 2
	}
	if *showVersion {
		printVersion(stdout)
		return 0
	}

	if err := serve(configPath, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// splitArgs pulls --config out of args wherever it appears and returns the
// first positional argument as the subcommand along with what follows it.
// Flags before the subcommand stay with the subcommand's arguments.
func splitArgs(args []string) (configPath, subCmd string, rest []string) {
	configPath = defaultConfigPath
	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
			continue
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
			continue
		case strings.HasPrefix(arg, "-config="):
			configPath = strings.TrimPrefix(arg, "-config=")
			continue
		}
		remaining = append(remaining, arg)
	}

	for i, arg := range remaining {
		if len(arg) > 0 && arg[0] != '-' {
			rest = append(rest, remaining[:i]...)
			rest = append(rest, remaining[i+1:]...)
			return configPath, arg, rest
		}
	}
	return configPath, "", remaining
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "confessly v%s (built %s)\n", version, buildTime)
	fmt.Fprintln(w, "Offline action queue for the Confessly app")
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no config found, creating default")
			cfg = config.DefaultConfig()
			if err := cfg.Save(path); err != nil {
				return nil, fmt.Errorf("save default config: %w", err)
			}
			logger.Info("default config created", "path", path)
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// setup loads the config and builds the app with a logger writing to w.
func setup(configPath string, w io.Writer) (*app.App, error) {
	bootLogger, _ := logging.New("info", "text", w)
	cfg, err := loadConfig(configPath, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, level := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat, w)
	a, err := app.New(cfg, logger, level)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// serve runs the daemon until SIGINT or SIGTERM.
func serve(configPath string, stdout io.Writer) error {
	a, err := setup(configPath, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Logger.Info("starting confessly",
		"version", version,
		"config", configPath,
		"network", a.Config.Network.Mode,
		"storage", a.Config.Storage.Backend,
	)

	watcher := config.NewWatcher(a.Config, configPath, 0, a.Logger, func(*config.ReloadResult) {
		snap := a.Config.Snapshot()
		a.ApplyConfig(&snap)
	})
	reload := func() { watcher.ReloadNow() }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error {
		waitForShutdown(ctx, a.Logger, reload)
		cancel()
		return nil
	})

	err = g.Wait()
	a.Logger.Info("confessly stopped", "queued", a.Manager.QueueSize())
	return err
}

// waitForShutdown blocks until a shutdown signal arrives or ctx ends.
// Platform signals such as SIGHUP are handled in place.
func waitForShutdown(ctx context.Context, logger *slog.Logger, reload func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, getShutdownSignals()...)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if handlePlatformSignal(sig, logger, reload) {
				continue
			}
			logger.Info("shutdown signal received", "signal", sig)
			return
		}
	}
}
