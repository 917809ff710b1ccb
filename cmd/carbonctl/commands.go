package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/dashboard"
	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/export"
	"github.com/nicktill/carbondash/pkg/ingest"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/server"
)

// openFunc opens the warehouse described by env.
type openFunc func(ctx context.Context, env config.Env) (server.Store, error)

type app struct {
	out  io.Writer
	open openFunc

	env     config.Env
	backend string
	dsn     string
	dataDir string
}

// newRootCmd builds the command tree. open defaults to server.InitializeWarehouse.
func newRootCmd(out io.Writer, open openFunc) *cobra.Command {
	if open == nil {
		open = server.InitializeWarehouse
	}
	a := &app{out: out, open: open}

	root := &cobra.Command{
		Use:          "carbonctl",
		Short:        "Load and query card-spend carbon emissions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadEnv()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "Warehouse backend (memory, badger, sqlite, mysql); overrides CARBONDASH_BACKEND")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "SQL data source name; overrides CARBONDASH_DSN")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Badger data directory; overrides CARBONDASH_DATA_DIR")

	root.AddCommand(a.importCmd(), a.catalogCmd(), a.renderCmd(), a.exportCmd(), a.statsCmd())
	return root
}

func (a *app) loadEnv() error {
	env := config.Env{}
	if err := config.ParseEnv(&env); err != nil {
		return err
	}
	if a.backend != "" {
		env.Backend = a.backend
	}
	if a.dsn != "" {
		env.DSN = a.dsn
	}
	if a.dataDir != "" {
		env.DataDir = a.dataDir
	}
	if err := env.Validate(); err != nil {
		return err
	}
	a.env = env
	return nil
}

// withStore opens the warehouse for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(server.Store) error) error {
	store, err := a.open(ctx, a.env)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (a *app) renderer(store server.Store) *dashboard.Renderer {
	return dashboard.NewRenderer(store, dashboard.Config{
		Relation:    a.env.Relation,
		TopN:        a.env.TopN,
		PointsPerKG: a.env.PointsPerKG,
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// selectionFlags holds one flag value per dimension.
type selectionFlags map[relation.Column]*string

// addSelectionFlags registers a flag on cmd for each dimension in dims.
func addSelectionFlags(cmd *cobra.Command, dims ...relation.Column) selectionFlags {
	flags := selectionFlags{}
	for _, dim := range lo.Uniq(dims) {
		v := new(string)
		flags[dim] = v
		cmd.Flags().StringVar(v, dashboard.Params[dim], "", emission.Label(dim))
	}
	return flags
}

// selection returns the non-empty flags among dims.
func (f selectionFlags) selection(dims ...relation.Column) dashboard.Selection {
	sel := dashboard.Selection{}
	for _, dim := range dims {
		if v := f[dim]; v != nil && *v != "" {
			sel[dim] = *v
		}
	}
	return sel
}

func (a *app) importCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load records from a CSV or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				f, err := ingest.FormatFromPath(path)
				if err != nil {
					return err
				}
				format = f
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer file.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), config.ImportTimeout)
			defer cancel()
			return a.withStore(ctx, func(store server.Store) error {
				result, err := ingest.NewImporter(store).ImportFrom(ctx, file, format)
				if err != nil {
					return err
				}
				return a.printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Input format (csv or json); inferred from the file extension when empty")
	return cmd
}

func (a *app) catalogCmd() *cobra.Command {
	var year string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the selectable dimension values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.RenderTimeout)
			defer cancel()
			return a.withStore(ctx, func(store server.Store) error {
				opts, err := a.renderer(store).Options(ctx, year)
				if err != nil {
					return err
				}
				return a.printJSON(map[string]any{"options": opts})
			})
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "Scope the month list to this year")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	var flags selectionFlags
	cmd := &cobra.Command{
		Use:       "render <emissions|periods>",
		Short:     "Render a dashboard as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{dashboard.Emissions, dashboard.Periods},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.RenderTimeout)
			defer cancel()
			return a.withStore(ctx, func(store server.Store) error {
				r := a.renderer(store)
				switch args[0] {
				case dashboard.Emissions:
					page, err := r.Emissions(ctx, flags.selection(dashboard.PrimaryDims...))
					if err != nil {
						return err
					}
					return a.printJSON(page)
				case dashboard.Periods:
					page, err := r.Periods(ctx, flags.selection(dashboard.PeriodDims...))
					if err != nil {
						return err
					}
					return a.printJSON(page)
				}
				return fmt.Errorf("unknown dashboard %q (want %s or %s)", args[0], dashboard.Emissions, dashboard.Periods)
			})
		},
	}
	flags = addSelectionFlags(cmd, append(append([]relation.Column{}, dashboard.PrimaryDims...), dashboard.PeriodDims...)...)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		table, format, out string
		flags              selectionFlags
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one emission dashboard table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := a.out
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), config.RenderTimeout)
			defer cancel()
			return a.withStore(ctx, func(store server.Store) error {
				_, err := export.NewExporter(a.renderer(store)).Export(ctx, w, export.ExportOptions{
					Selection: flags.selection(dashboard.PrimaryDims...),
					Table:     table,
					Format:    format,
				})
				return err
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", export.TableTopUsage, "Table to export")
	cmd.Flags().StringVar(&format, "format", config.ExportFormatCSV, "Output format (csv or json)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to this file instead of stdout")
	flags = addSelectionFlags(cmd, dashboard.PrimaryDims...)
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show source relation stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.StatsTimeout)
			defer cancel()
			return a.withStore(ctx, func(store server.Store) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				return a.printJSON(stats)
			})
		},
	}
}
