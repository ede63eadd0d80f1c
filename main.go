package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cdtdelta/easlog/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "easlog:", err)
		os.Exit(1)
	}
}

// cli holds the state shared by the subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "easlog",
		Short: "easlog - ActiveSync log aggregator",
		Long: `easlog reads Exchange ActiveSync request logs, groups every logged
request by device, and prints each device's requests in time order.
Results can also be stored in SQLite or PostgreSQL and browsed over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.ReadFile(c.v, c.cfgFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.cfgFile, "config", "c", "", "config file (default: $HOME/.easlog.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")

	root.AddCommand(c.parseCmd(), c.queryCmd(), c.serveCmd(), c.versionCmd())
	return root
}

// load binds the flags of the running command to their config keys and
// returns the validated configuration plus an App built from it.
// Binding happens here rather than at construction because several
// subcommands bind the same key.
func (c *cli) load(cmd *cobra.Command, keys map[string]string) (*App, error) {
	keys["log-level"] = "log.level"
	keys["log-format"] = "log.format"
	for name, key := range keys {
		if err := c.bind(cmd.Flags(), name, key); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(c.v)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, cfg.Log.NewLogger(c.stderr), c.stdout), nil
}

func (c *cli) bind(fs *pflag.FlagSet, name, key string) error {
	f := fs.Lookup(name)
	if f == nil {
		return fmt.Errorf("unknown flag %q", name)
	}
	return c.v.BindPFlag(key, f)
}

func (c *cli) parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [flags] <file|dir|glob|regex>...",
		Short: "Parse ActiveSync logs and print each device's requests",
		Long: `Parse reads every input, which may be a file, a directory (walked
recursively), a glob such as logs/**/*.log, or a regular expression
matched against the file names of its parent directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.load(cmd, map[string]string{
				"keep":      "keep",
				"workers":   "workers",
				"charset":   "charsets",
				"format":    "format",
				"output":    "output",
				"compress":  "compress",
				"db-driver": "database.driver",
				"db":        "database.dsn",
			})
			if err != nil {
				return err
			}
			return app.Parse(cmd.Context(), args)
		},
	}

	f := cmd.Flags()
	f.StringSliceP("keep", "k", nil, "only print these device ids (comma separated)")
	f.IntP("workers", "w", 4, "number of files parsed concurrently")
	f.StringSlice("charset", []string{"US-ASCII", "UTF-8", "UTF-16", "ISO-8859-1"}, "charsets to try, in order (repeatable)")
	addOutputFlags(f)
	f.String("compress", "none", "compress the report: none, gzip, zstd, lz4")
	addDatabaseFlags(f, "also store entries in this database")
	return cmd
}

func (c *cli) queryCmd() *cobra.Command {
	var req QueryRequest

	cmd := &cobra.Command{
		Use:   "query --db <path> [flags]",
		Short: "Print entries stored by earlier parse runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.load(cmd, map[string]string{
				"format":    "format",
				"output":    "output",
				"db-driver": "database.driver",
				"db":        "database.dsn",
			})
			if err != nil {
				return err
			}
			return app.Query(req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Device, "device", "", "only entries of this device id")
	f.StringVar(&req.Where, "where", "", "raw SQL WHERE clause over the entry columns")
	f.IntVar(&req.Limit, "limit", 0, "maximum number of entries (0 for all)")
	f.IntVar(&req.Page, "page", 1, "page number when --limit is set")
	addOutputFlags(f)
	addDatabaseFlags(f, "database to read")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve --db <path> [flags]",
		Short: "Serve a read-only JSON API over a stored database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.load(cmd, map[string]string{
				"addr":      "server.addr",
				"db-driver": "database.driver",
				"db":        "database.dsn",
			})
			if err != nil {
				return err
			}
			return app.Serve(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	addDatabaseFlags(f, "database to serve")
	return cmd
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the easlog version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(c.stdout, "easlog", Version)
		},
	}
}

func addOutputFlags(f *pflag.FlagSet) {
	f.StringP("format", "f", "text", "report format: text, json, csv")
	f.StringP("output", "o", "-", "report file (- for stdout)")
}

func addDatabaseFlags(f *pflag.FlagSet, usage string) {
	f.String("db-driver", "sqlite", "database driver: sqlite, postgres")
	f.String("db", "", usage+" (SQLite path or PostgreSQL connection string)")
}
