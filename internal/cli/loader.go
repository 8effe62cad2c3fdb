package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/synq/internal/config"
	"github.com/roach88/synq/internal/engine"
	"github.com/roach88/synq/internal/notify"
	"github.com/roach88/synq/internal/state"
	"github.com/roach88/synq/internal/store"
	"github.com/roach88/synq/internal/transport"
)

// shutdownTimeout bounds the final flush when a command exits.
const shutdownTimeout = 10 * time.Second

// Client is a running engine with the collaborators it was built from.
type Client struct {
	Config *config.Config
	Engine *engine.Engine
	State  *state.State

	kv       store.KV
	teardown []func(context.Context) error
	cancel   context.CancelFunc
	done     chan error
	sigs     chan os.Signal
	closed   bool
}

// LoadConfig reads the configuration named by opts, or the defaults.
func LoadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.Config == "" {
		return config.Defaults(), nil
	}
	if _, err := os.Stat(opts.Config); err != nil {
		return nil, WrapExitError(ExitCommandError, "config not found", err)
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// OpenClient loads the configuration, opens storage, restores the
// persisted state and starts the engine loop. The returned client must be
// closed; Close runs the engine's shutdown so queued records get one last
// chance to leave. SIGINT and SIGTERM cancel the returned context.
func OpenClient(cmd *cobra.Command, opts *RootOptions) (*Client, context.Context, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	codec, err := state.CodecByName(cfg.Storage.Codec)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	policy, err := engine.ParseWindowPolicy(cfg.Window)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	slog.Debug("opening storage", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)
	kv, err := store.OpenDriver(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open storage", err)
	}

	var tr transport.Transport
	if opts.NewTransport != nil {
		tr = opts.NewTransport(cfg)
	} else {
		tr = transport.NewHTTP(cfg.APIURL, transport.WithTimeout(cfg.HTTPTimeout))
	}

	st := state.New()
	eng := engine.New(st, state.NewPersister(kv, state.WithCodec(codec)), tr,
		engine.WithDebounce(cfg.Debounce),
		engine.WithWindowPolicy(policy),
		engine.WithNotifier(notify.NewSlogNotifier(nil)),
		engine.WithMobile(cfg.Mobile),
		engine.WithBuildTag(cfg.BuildTag),
	)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if err := eng.Restore(parent); err != nil {
		_ = kv.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to restore state", err)
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		Config: cfg,
		Engine: eng,
		State:  st,
		kv:     kv,
		cancel: cancel,
		done:   make(chan error, 1),
		sigs:   make(chan os.Signal, 1),
	}

	eng.RegisterTeardown(c)

	signal.Notify(c.sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c.sigs:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// The loop outlives ctx so Close can still run the final flush.
	go func() { c.done <- eng.Run(context.WithoutCancel(ctx)) }()

	slog.Debug("client ready", "api_url", cfg.APIURL, "window", policy, "debounce", cfg.Debounce)
	return c, ctx, nil
}

// OnTeardown registers fn to run when the client closes. Implements
// engine.Lifecycle.
func (c *Client) OnTeardown(fn func(context.Context) error) {
	c.teardown = append(c.teardown, fn)
}

// Close runs the teardown hooks (the engine shutdown among them), stops the
// loop and closes storage.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	signal.Stop(c.sigs)
	defer c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(c.teardown) - 1; i >= 0; i-- {
		if err := c.teardown[i](ctx); err != nil && !errors.Is(err, engine.ErrStopped) {
			errs = append(errs, fmt.Errorf("teardown: %w", err))
		}
	}
	c.Engine.Stop()
	if err := <-c.done; err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := c.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

// syncExitError maps an engine error to an exit error with a response code.
func syncExitError(message string, err error) (*ExitError, string) {
	code := ErrCodeGeneric
	switch {
	case errors.Is(err, engine.ErrUnauthenticated), errors.Is(err, engine.ErrMissingCredentials):
		code = ErrCodeUnauthenticated
	case errors.Is(err, engine.ErrOffline):
		code = ErrCodeOffline
	case engine.IsTransient(err):
		code = ErrCodeTransient
	case engine.IsRejected(err):
		code = ErrCodeRejected
	}
	return WrapExitError(ExitFailure, message, err), code
}

// reportSyncError writes err in the configured format and returns the exit error.
func reportSyncError(f *OutputFormatter, message string, err error) error {
	exitErr, code := syncExitError(message, err)
	var details any
	var se *engine.SyncError
	if errors.As(err, &se) && se.BatchID != "" {
		details = map[string]string{"batch_id": se.BatchID}
	}
	if writeErr := f.Error(code, exitErr.Error(), details); writeErr != nil {
		return writeErr
	}
	return exitErr
}

// formatter builds the output formatter for cmd.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
