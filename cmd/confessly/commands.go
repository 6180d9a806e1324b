package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/clawinfra/confessly/internal/app"
	"github.com/clawinfra/confessly/internal/inspect"
	"github.com/clawinfra/confessly/internal/logging"
)

// openQueue builds the app, which reads the persisted queue, without
// starting any background work.
func openQueue(configPath string, logs io.Writer) (*app.App, error) {
	return setup(configPath, logs)
}

func queueCommand(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("queue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "Print the queue as JSON (list only)")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(pos) != 1 {
		fmt.Fprintln(stderr, "Usage: confessly queue list|size|clear|flush [--json]")
		return 2
	}

	ctx := context.Background()
	a, err := openQueue(configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	switch pos[0] {
	case "list":
		actions := a.Manager.Queue()
		if *asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(actions); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			return 0
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tENQUEUED\tRETRIES")
		for _, act := range actions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n",
				act.ID, act.Type, act.EnqueuedAt.Format(time.RFC3339), act.RetryCount, act.MaxRetries)
		}
		tw.Flush()
	case "size":
		fmt.Fprintln(stdout, a.Manager.QueueSize())
	case "clear":
		n := a.Manager.QueueSize()
		a.Manager.ClearQueue(ctx)
		fmt.Fprintf(stdout, "cleared %d queued actions\n", n)
	case "flush":
		result := a.Manager.ProcessNow(ctx)
		fmt.Fprintf(stdout, "%s (%d remaining)\n", result, a.Manager.QueueSize())
	default:
		fmt.Fprintf(stderr, "Unknown queue command: %s\n", pos[0])
		return 2
	}
	return 0
}

func enqueueCommand(args []string, configPath string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	maxRetries := fs.Int("max-retries", 0, "Retry budget for this action (0 uses queue.defaultMaxRetries)")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(pos) < 1 || len(pos) > 2 {
		fmt.Fprintln(stderr, "Usage: confessly enqueue TYPE ['PAYLOAD_JSON'] [--max-retries n]")
		return 2
	}
	payload := ""
	if len(pos) == 2 {
		payload = pos[1]
	}

	// Reject bad input before touching storage.
	if _, err := app.ParsePayload(pos[0], payload); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	a, err := openQueue(configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	id, err := a.EnqueueJSON(ctx, pos[0], payload, *maxRetries)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, id)
	return 0
}

func inspectCommand(configPath string, stderr io.Writer) int {
	// Logs would tear the alternate screen, so they are dropped here.
	cfg, err := loadConfig(configPath, logging.Discard())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	a, err := app.New(cfg, logging.Discard(), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	err = inspect.Run(ctx, a.Manager)
	stop()
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseInterspersed lets flags follow positional arguments, which the flag
// package alone does not allow.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}
