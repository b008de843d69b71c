package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	dbcFile string
	id      string
	got     Input
}

func (p *probe) command() *cobra.Command {
	cmd := &cobra.Command{
		Use: "probe",
		RunE: WithContext(func(_ context.Context, input Input) error {
			p.got = input
			return nil
		}),
	}
	cmd.Flags().StringVar(&p.dbcFile, "dbc-file", "", "DBC file")
	cmd.Flags().StringVar(&p.id, "id", "", "ID")
	_ = cmd.MarkFlagRequired("dbc-file")
	return cmd
}

func run(t *testing.T, c *CLI, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	c.Root().SetArgs(args)
	c.Root().SetOut(&out)
	c.Root().SetErr(&out)
	return c.Root().ExecuteContext(context.Background())
}

func TestConfigFileSuppliesFlags(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "dbcsignal.ini")
	require.NoError(t, os.WriteFile(cfg, []byte(`log-level = debug
id = 0x1

[probe]
dbc-file = from-config.dbc
id = 0x2
`), 0o644))

	p := &probe{}
	c := NewCLI("dbcsignal", "test")
	c.AddCommands(p.command())

	require.NoError(t, run(t, c, "probe", "--config", cfg, "extra"))
	assert.Equal(t, "from-config.dbc", p.dbcFile)
	assert.Equal(t, "0x2", p.id)
	assert.Equal(t, []string{"extra"}, p.got.Args)
	require.NotNil(t, p.got.Logger)
	assert.True(t, p.got.Logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestCommandLineWinsOverConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "dbcsignal.ini")
	require.NoError(t, os.WriteFile(cfg, []byte("[probe]\ndbc-file = from-config.dbc\n"), 0o644))

	p := &probe{}
	c := NewCLI("dbcsignal", "test")
	c.AddCommands(p.command())

	require.NoError(t, run(t, c, "probe", "--config", cfg, "--dbc-file", "flag.dbc"))
	assert.Equal(t, "flag.dbc", p.dbcFile)
	assert.False(t, p.got.Logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestMissingConfig(t *testing.T) {
	c := NewCLI("dbcsignal", "test")
	c.AddCommands((&probe{}).command())
	assert.Error(t, run(t, c, "probe", "--config", filepath.Join(t.TempDir(), "none.ini")))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
