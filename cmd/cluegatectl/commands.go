package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Siruyy/cluegate/internal/clue"
	"github.com/Siruyy/cluegate/internal/gate"
	"github.com/Siruyy/cluegate/internal/storage"
)

type globalFlags struct {
	backend     string
	databaseURL string
	sqlitePath  string
	redisAddr   string
	catalogFile string
	timeout     time.Duration
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "cluegatectl",
		Short:         "Inspect and administer cluegate clue progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.backend, "store", envOr("STORE_BACKEND", storage.BackendSQLite), "Progress store: postgres | sqlite | redis")
	pf.StringVar(&flags.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", envOr("SQLITE_PATH", "cluegate.db"), "SQLite database file")
	pf.StringVar(&flags.redisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
	pf.StringVar(&flags.catalogFile, "catalog", os.Getenv("CATALOG_FILE"), "YAML clue catalog (default: built-in)")
	pf.DurationVar(&flags.timeout, "timeout", 10*time.Second, "Timeout for store operations")

	root.AddCommand(progressCmd(flags), catalogCmd(flags))
	return root
}

func progressCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show or reset a user's clue progress",
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show the state of every clue for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGate(cmd.Context(), flags, func(ctx context.Context, g *gate.Gate) error {
				rows, err := g.Progress(ctx, args[0])
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CLUE\tSTATE\tSOLVED AT")
				for _, row := range rows {
					solvedAt := "-"
					if row.SolvedAt != nil {
						solvedAt = row.SolvedAt.UTC().Format(time.RFC3339)
					}
					marker := ""
					if row.Final {
						marker = " (final)"
					}
					fmt.Fprintf(w, "%s%s\t%s\t%s\n", row.Key, marker, stateLabel(row.State), solvedAt)
				}
				return w.Flush()
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset <user-id> <clue-key>",
		Short: "Return a clue to unsolved (e.g. M1C3)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := clue.ParseKey(args[1])
			if err != nil {
				return err
			}
			return withGate(cmd.Context(), flags, func(ctx context.Context, g *gate.Gate) error {
				if err := g.Reset(ctx, args[0], key.Month, key.Index); err != nil {
					return fmt.Errorf("failed to reset %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s reset %s for %s\n", color.New(color.FgGreen).Sprint("✓"), key, args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}

func catalogCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect clue catalogs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the clues in the configured catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(flags.catalogFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLUE\tANSWERS\tREWARD")
			for _, def := range catalog.All() {
				title := def.Reward.Title
				if def.Final {
					title += color.New(color.FgHiMagenta).Sprint(" [final]")
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", def.Key(), len(def.Answers), title)
			}
			return w.Flush()
		},
	}

	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML clue catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := clue.LoadFile(args[0])
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.FgRed).Sprint("INVALID"), args[0])
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d clues, last %s)\n",
				color.New(color.FgGreen).Sprint("OK"), args[0], catalog.Len(), catalog.Last().Key())
			return nil
		},
	}

	cmd.AddCommand(list, check)
	return cmd
}

func withGate(parent context.Context, flags *globalFlags, fn func(context.Context, *gate.Gate) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, flags.timeout)
	defer cancel()

	if flags.backend == storage.BackendMemory {
		return fmt.Errorf("the memory store is per-process; choose postgres, sqlite or redis")
	}

	catalog, err := loadCatalog(flags.catalogFile)
	if err != nil {
		return err
	}

	redisCfg := storage.DefaultRedisConfig()
	redisCfg.Addr = flags.redisAddr

	store, err := storage.Open(ctx, storage.OpenConfig{
		Backend:     flags.backend,
		DatabaseURL: flags.databaseURL,
		SQLitePath:  flags.sqlitePath,
		Redis:       redisCfg,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := gate.New(store, catalog)
	if err != nil {
		return err
	}
	return fn(ctx, g)
}

func loadCatalog(path string) (*clue.Catalog, error) {
	if path == "" {
		return clue.Default(), nil
	}
	return clue.LoadFile(path)
}

func stateLabel(s gate.State) string {
	switch s {
	case gate.StateOpenSolved:
		return color.New(color.FgGreen).Sprint(string(s))
	case gate.StateOpenUnsolved:
		return color.New(color.FgYellow).Sprint(string(s))
	default:
		return color.New(color.FgRed).Sprint(string(s))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
