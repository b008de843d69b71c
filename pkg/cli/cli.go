// Package cli wires cobra commands with a shared logger and an optional INI config file.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"
)

// Input is handed to every command.
type Input struct {
	Logger *slog.Logger
	Stdout io.Writer
	Args   []string
}

// CLI is the root command with its shared logging and config flags.
type CLI struct {
	root       *cobra.Command
	logLevel   string
	logFormat  string
	configFile string
}

// NewCLI builds the root command.
func NewCLI(name, short string) *CLI {
	c := &CLI{
		logLevel:  "info",
		logFormat: "text",
	}
	c.root = &cobra.Command{
		Use:               name,
		Short:             short,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := c.root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", c.configFile, "INI file with flag defaults")
	flags.StringVar(&c.logLevel, "log-level", c.logLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&c.logFormat, "log-format", c.logFormat, "Log format (text, json)")

	return c
}

// AddCommands registers subcommands under the root.
func (c *CLI) AddCommands(cmds ...*cobra.Command) {
	c.root.AddCommand(cmds...)
}

// Root exposes the root command, mainly for tests.
func (c *CLI) Root() *cobra.Command {
	return c.root
}

// Run executes the command line and cancels the context on SIGINT/SIGTERM.
func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.root.ExecuteContext(ctx)
}

type loggerKey struct{}

func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	if c.configFile != "" {
		cfg, err := ini.Load(c.configFile)
		if err != nil {
			return errors.Wrapf(err, "load config %s", c.configFile)
		}
		if err := ApplyConfig(cfg, cmd); err != nil {
			return err
		}
	}

	logger, err := NewLogger(cmd.ErrOrStderr(), c.logLevel, c.logFormat)
	if err != nil {
		return err
	}
	cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
	return nil
}

// ApplyConfig sets flags that were not given on the command line. Keys of the DEFAULT
// section apply to any flag, keys of the section named after the command take precedence.
func ApplyConfig(cfg *ini.File, cmd *cobra.Command) error {
	sections := []*ini.Section{cfg.Section(ini.DefaultSection)}
	if sec, err := cfg.GetSection(cmd.Name()); err == nil {
		sections = append(sections, sec)
	}

	var errs error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		for i := len(sections) - 1; i >= 0; i-- {
			if !sections[i].HasKey(f.Name) {
				continue
			}
			if err := cmd.Flags().Set(f.Name, sections[i].Key(f.Name).String()); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "config key %s", f.Name))
			}
			return
		}
	})
	return errs
}

// NewLogger builds the slog logger used by all commands.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.Newf("invalid log format %q", format)
	}
}

// WithContext adapts a command body to cobra's RunE.
func WithContext(fn func(ctx context.Context, input Input) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
		if !ok {
			logger = slog.Default()
		}
		return fn(ctx, Input{
			Logger: logger,
			Stdout: cmd.OutOrStdout(),
			Args:   args,
		})
	}
}
