// Command orderctl runs the intake pipeline on local PDF files and inspects
// stored orders without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"medorders/internal/app"
	"medorders/internal/config"
	"medorders/internal/domain"
	"medorders/internal/export"
	"medorders/internal/logging"
	"medorders/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "orderctl",
		Short:        "Medical order intake from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("store", "", "entity store backend (postgres|memory); overrides MEDORDERS_SERVER_STORE")

	root.AddCommand(previewCmd(), ingestCmd(), inboxCmd(), getCmd(), listCmd(), exportCmd())
	return root
}

// withApp loads configuration, wires the application and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Server.StoreBackend = store
	}
	// Logs go to stderr so stdout stays machine readable.
	logger := logging.NewWithWriter(cfg.Log, os.Stderr)

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func readDocument(path string) (domain.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RawDocument{}, err
	}
	return domain.RawDocument{Filename: filepath.Base(path), MediaType: "application/pdf", Bytes: data}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe prints the error class and failing state to stderr.
func describe(cmd *cobra.Command, err error) error {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed in state %s after %v (%s problem)\n", pe.State, pe.Trace, domain.Classify(err))
	}
	return err
}

func previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview FILE.pdf",
		Short: "Extract order data from a PDF without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Intake.Preview(ctx, doc)
				if err != nil {
					return describe(cmd, err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE.pdf...",
		Short: "Extract and store the order in each PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var failed int
				for _, path := range args {
					doc, err := readDocument(path)
					if err == nil {
						var res *domain.OrderPersistResult
						res, err = a.Intake.Ingest(ctx, doc)
						if err == nil {
							if err := printJSON(cmd.OutOrStdout(), res); err != nil {
								return err
							}
							continue
						}
					}
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, describe(cmd, err))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func inboxCmd() *cobra.Command {
	var dir string
	var once bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Ingest PDFs dropped into a directory",
		Long: "Watches the inbox directory and ingests every PDF placed in it. Processed files\n" +
			"move to done/ or failed/ next to a JSON report.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				cfg := a.Config.Inbox
				if dir != "" {
					cfg.Dir = dir
				}
				w, err := service.NewInboxWorker(a.Intake, cfg, a.Log)
				if err != nil {
					return err
				}
				if once {
					n := w.Drain(ctx)
					fmt.Fprintf(cmd.ErrOrStderr(), "processed %d documents\n", n)
					return nil
				}
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				w.Start(ctx)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "inbox directory; overrides MEDORDERS_INBOX_DIR")
	cmd.Flags().BoolVar(&once, "once", false, "process the current contents and exit")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ORDER_ID",
		Short: "Show a stored order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				o, err := a.Orders.GetByID(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}
}

func listCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored orders, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				orders, total, err := a.Orders.List(ctx, offset, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d orders\n", len(orders), total)
				return printJSON(cmd.OutOrStdout(), orders)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "number of orders to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of orders (max 100)")
	return cmd
}

func exportCmd() *cobra.Command {
	var formatFlag, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all stored orders as CSV or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			if out == "" {
				out = export.BuildFilename("orders", format, time.Now())
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := writeExport(ctx, a, format, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&formatFlag, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default orders_<date>.<format>)")
	return cmd
}

func writeExport(ctx context.Context, a *app.App, format export.Format, w io.Writer) error {
	const batch = 100
	each := func(write func([]domain.Order) error) error {
		for offset := 0; ; offset += batch {
			orders, total, err := a.Orders.List(ctx, offset, batch)
			if err != nil {
				return err
			}
			if err := write(orders); err != nil {
				return err
			}
			if offset+batch >= total || len(orders) == 0 {
				return nil
			}
		}
	}

	if format == export.FormatXLSX {
		xw, err := export.NewXLSXWriter()
		if err != nil {
			return err
		}
		defer xw.Close()
		if err := xw.WriteHeader(); err != nil {
			return err
		}
		if err := each(xw.WriteOrders); err != nil {
			return err
		}
		_, err = xw.WriteTo(w)
		return err
	}

	if _, err := w.Write(export.BOM); err != nil {
		return err
	}
	cw := export.NewCSVWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	if err := each(cw.WriteOrders); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
