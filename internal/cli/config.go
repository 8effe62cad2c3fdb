package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/synq/internal/config"
)

// ConfigView is the printable form of config.Config.
type ConfigView struct {
	APIURL      string         `json:"api_url"`
	BuildTag    string         `json:"build_tag"`
	Debounce    string         `json:"debounce"`
	Window      string         `json:"window"`
	Mobile      bool           `json:"mobile"`
	HTTPTimeout string         `json:"http_timeout"`
	Storage     config.Storage `json:"storage"`
}

func newConfigView(c *config.Config) ConfigView {
	return ConfigView{
		APIURL:      c.APIURL,
		BuildTag:    c.BuildTag,
		Debounce:    c.Debounce.String(),
		Window:      c.Window,
		Mobile:      c.Mobile,
		HTTPTimeout: c.HTTPTimeout.String(),
		Storage:     c.Storage,
	}
}

// String renders the configuration for text output.
func (v ConfigView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api_url:      %s\n", v.APIURL)
	fmt.Fprintf(&b, "build_tag:    %s\n", v.BuildTag)
	fmt.Fprintf(&b, "debounce:     %s\n", v.Debounce)
	fmt.Fprintf(&b, "window:       %s\n", v.Window)
	fmt.Fprintf(&b, "mobile:       %t\n", v.Mobile)
	fmt.Fprintf(&b, "http_timeout: %s\n", v.HTTPTimeout)
	fmt.Fprintf(&b, "storage:      %s %s (%s)", v.Storage.Driver, v.Storage.Path, v.Storage.Codec)
	return b.String()
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the client configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(opts))
	return cmd
}

func newConfigValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a CUE config and print the effective values",
		Long: `Load a CUE config file or directory, unify it with the schema and print
the effective configuration, defaults included. Without a path the --config
flag is used; without either the defaults are printed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := *opts
			if len(args) == 1 {
				o.Config = args[0]
			}
			cfg, err := LoadConfig(&o)
			if err != nil {
				if opts.Format == "json" {
					_ = formatter(cmd, opts).Error(ErrCodeConfig, err.Error(), nil)
				}
				return err
			}
			return formatter(cmd, opts).Success(newConfigView(cfg))
		},
	}
}
