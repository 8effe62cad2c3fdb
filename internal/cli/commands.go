package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synq/internal/engine"
	"github.com/roach88/synq/internal/ir"
)

// StatusView is the printable form of engine.Status.
type StatusView struct {
	Authenticated bool     `json:"authenticated"`
	Online        bool     `json:"online"`
	Fetching      bool     `json:"fetching"`
	WindowArmed   bool     `json:"window_armed"`
	Version       int64    `json:"version"`
	Queue         []string `json:"queue"`
	Sent          []string `json:"sent"`
	InFlight      string   `json:"in_flight,omitempty"`
}

func newStatusView(s engine.Status) StatusView {
	return StatusView{
		Authenticated: s.Authenticated,
		Online:        s.Online,
		Fetching:      s.Fetching,
		WindowArmed:   s.WindowArmed,
		Version:       s.Version,
		Queue:         opNames(s.Queue),
		Sent:          opNames(s.Sent),
		InFlight:      s.InFlight,
	}
}

// String renders the status for text output.
func (v StatusView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "authenticated: %t\n", v.Authenticated)
	fmt.Fprintf(&b, "online:        %t\n", v.Online)
	fmt.Fprintf(&b, "fetching:      %t\n", v.Fetching)
	fmt.Fprintf(&b, "version:       %d\n", v.Version)
	fmt.Fprintf(&b, "queue (%d):     %s\n", len(v.Queue), strings.Join(v.Queue, " "))
	fmt.Fprintf(&b, "sent (%d):      %s", len(v.Sent), strings.Join(v.Sent, " "))
	return b.String()
}

func opNames(ops []ir.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <user-id> <api-token>",
		Short: "Store credentials and fetch the full state",
		Long: `Apply credentials, mark the client online and fetch the user's state
from the authority. Credentials are persisted for later commands.

Example:
  synq login 3f0c... 8a1b...`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, opts)
			c, ctx, err := OpenClient(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Engine.Authenticate(ctx, args[0], args[1]); err != nil {
				return reportSyncError(f, "login failed", err)
			}
			if opts.Format == "json" {
				return f.Success(map[string]any{"user": args[0], "version": c.State.Version()})
			}
			return f.Success(fmt.Sprintf("Logged in as %s (version %d)", args[0], c.State.Version()))
		},
	}
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Params map[string]string
	Query  map[string]string
	Body   string
	Urgent bool
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <operation>",
		Short: "Queue an operation for the authority",
		Long: `Append an operation record to the sync queue. Without --urgent the record
waits behind the debounce window and leaves when the command exits.

Examples:
  synq log score --param id=task-1 --param direction=up
  synq log update --body '{"preferences.timezoneOffset": 240}' --urgent`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "path parameter key=value (repeatable)")
	cmd.Flags().StringToStringVar(&opts.Query, "query", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Body, "body", "", "JSON object sent as the request body")
	cmd.Flags().BoolVar(&opts.Urgent, "urgent", false, "flush now and wait for the outcome")

	return cmd
}

func runLog(cmd *cobra.Command, opts *LogOptions, name string) error {
	f := formatter(cmd, opts.RootOptions)

	op := ir.Operation{Name: name, Params: stringMap(opts.Params), Query: stringMap(opts.Query)}
	if opts.Body != "" {
		if err := json.Unmarshal([]byte(opts.Body), &op.Body); err != nil {
			return WrapExitError(ExitCommandError, "invalid --body", err)
		}
	}

	c, ctx, err := OpenClient(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.Urgent {
		if err := c.Engine.LogUrgent(ctx, op); err != nil {
			return reportSyncError(f, "operation not synced", err)
		}
		return f.Success(fmt.Sprintf("Synced %s", op))
	}

	if err := c.Engine.Log(op); err != nil {
		return reportSyncError(f, "operation not queued", err)
	}
	return f.Success(fmt.Sprintf("Queued %s", op))
}

// stringMap converts flag values to a record map; nil stays nil.
func stringMap(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <path=value>...",
		Short: "Update state fields by dotted path",
		Long: `Apply dotted-path updates locally and queue them for the authority.
Values are parsed as JSON when possible and taken as strings otherwise.

Example:
  synq set preferences.timezoneOffset=240 preferences.dayStart=4`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseAssignments(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid assignment", err)
			}

			c, _, err := OpenClient(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Engine.Set(updates); err != nil {
				return reportSyncError(formatter(cmd, opts), "update not queued", err)
			}
			return formatter(cmd, opts).Success(fmt.Sprintf("Queued update of %d field(s)", len(updates)))
		},
	}
}

// parseAssignments turns path=value arguments into an update body.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		path, raw, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("%q is not path=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[path] = v
	}
	return out, nil
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "flush",
		Short:         "Send queued operations now and wait for the outcome",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, opts)
			c, ctx, err := OpenClient(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Engine.FlushWait(ctx); err != nil {
				return reportSyncError(f, "flush failed", err)
			}
			return f.Success("Flushed")
		},
	}
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "sync",
		Short:         "Refetch the full state from the authority",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, opts)
			c, ctx, err := OpenClient(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Engine.Sync(); err != nil {
				return reportSyncError(f, "sync failed", err)
			}
			if err := c.Engine.FlushWait(ctx); err != nil {
				return reportSyncError(f, "sync failed", err)
			}
			return f.Success(fmt.Sprintf("Synced (version %d)", c.State.Version()))
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the sync bookkeeping",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, err := OpenClient(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := c.Engine.Status(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "status unavailable", err)
			}
			return formatter(cmd, opts).Success(newStatusView(s))
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Wipe stored credentials, state and queued operations",
		Long: `Clear local storage and forget the credentials. Queued operations that
have not reached the authority are lost.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, err := OpenClient(cmd, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Engine.Reset(ctx); err != nil {
				return WrapExitError(ExitFailure, "reset failed", err)
			}
			return formatter(cmd, opts).Success("Reset")
		},
	}
}
