package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synq/internal/engine"
	"github.com/roach88/synq/internal/ir"
	"github.com/roach88/synq/internal/state"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start an interactive sync session",
		Long: `Start the engine with the stored credentials and read commands from stdin,
one per line:

  log <op> [json-body]   queue an operation behind the window
  urgent <op> [json-body] send an operation now and wait
  set <path=value>...    update fields by dotted path
  undo                   revert what the open window holds
  flush                  send the queue now
  sync                   refetch the full state
  online | offline       report connectivity
  status                 print the bookkeeping
  get <path>             print a state field
  quit                   flush and exit

The session ends on quit, end of input, SIGINT or SIGTERM; queued operations
get one last flush before exit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts)
		},
	}
}

func runSession(cmd *cobra.Command, opts *RootOptions) error {
	f := formatter(cmd, opts)
	c, ctx, err := OpenClient(cmd, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Engine.Start(ctx); err != nil {
		if !errors.Is(err, engine.ErrUnauthenticated) {
			return reportSyncError(f, "start failed", err)
		}
		// Without credentials nothing stored can be trusted.
		slog.Warn("no stored credentials, clearing local data")
		if err := c.Engine.Reset(ctx); err != nil {
			return WrapExitError(ExitFailure, "reset failed", err)
		}
	}

	unsubscribe := c.State.Subscribe(func(ev state.Event) {
		slog.Debug("state event", "kind", ev.Kind.String(), "version", ev.Version)
	})
	defer unsubscribe()

	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	go scanLines(cmd.InOrStdin(), lines, stop)

	fmt.Fprintln(f.GetErrWriter(), "Session started. Type quit or press Ctrl-D to stop.")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execLine(ctx, c, f, line)
			if err != nil {
				fmt.Fprintf(f.GetErrWriter(), "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func scanLines(r io.Reader, out chan<- string, stop <-chan struct{}) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-stop:
			return
		}
	}
}

// execLine runs one session command. It reports whether the session should end.
func execLine(ctx context.Context, c *Client, f *OutputFormatter, line string) (bool, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	eng := c.Engine

	switch verb {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "log", "urgent":
		op, err := parseOperation(rest)
		if err != nil {
			return false, err
		}
		if verb == "log" {
			return false, eng.Log(op)
		}
		if err := eng.LogUrgent(ctx, op); err != nil {
			return false, err
		}
		return false, f.Success(fmt.Sprintf("synced %s", op))
	case "set":
		updates, err := parseAssignments(strings.Fields(rest))
		if err != nil {
			return false, err
		}
		return false, eng.Set(updates)
	case "undo":
		return false, eng.Undo()
	case "flush":
		return false, eng.Flush()
	case "sync":
		return false, eng.Sync()
	case "online", "offline":
		return false, eng.SetOnline(verb == "online")
	case "status":
		s, err := eng.Status(ctx)
		if err != nil {
			return false, err
		}
		return false, f.Success(newStatusView(s))
	case "get":
		v, ok := c.State.GetPath(rest)
		if !ok {
			return false, fmt.Errorf("%s is not set", rest)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return false, err
		}
		return false, f.Success(string(data))
	default:
		return false, fmt.Errorf("unknown command %q", verb)
	}
}

// parseOperation reads "<op> [json-body]".
func parseOperation(s string) (ir.Operation, error) {
	name, body, _ := strings.Cut(s, " ")
	if name == "" {
		return ir.Operation{}, errors.New("operation name required")
	}
	op := ir.Operation{Name: name}
	if body = strings.TrimSpace(body); body != "" {
		if err := json.Unmarshal([]byte(body), &op.Body); err != nil {
			return ir.Operation{}, fmt.Errorf("body: %w", err)
		}
	}
	return op, nil
}
