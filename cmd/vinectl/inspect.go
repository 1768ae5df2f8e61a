package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/VineLedger/internal/cancellation"
	"github.com/dharsanguruparan/VineLedger/internal/config"
	"github.com/dharsanguruparan/VineLedger/internal/database"
	"github.com/dharsanguruparan/VineLedger/internal/ingest"
	"github.com/dharsanguruparan/VineLedger/internal/repository"
	"github.com/dharsanguruparan/VineLedger/internal/s3storage"
	"github.com/dharsanguruparan/VineLedger/internal/valuation"
	"github.com/dharsanguruparan/VineLedger/internal/vine"
)

func newInspectCmd() *cobra.Command {
	var (
		tier     string
		rows     int
		uploadID string
	)
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Parse a spreadsheet offline and show what an upload would store",
		Long: `inspect parses a local spreadsheet, or with --upload the archived original
of a stored upload, and prints the orders and values it yields.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data     []byte
				filename string
				err      error
			)
			switch {
			case uploadID != "" && len(args) == 1:
				return errors.New("pass either a file or --upload, not both")
			case uploadID != "":
				var upTier string
				filename, upTier, data, err = fetchOriginal(cmd.Context(), uploadID)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("tier") {
					tier = upTier
				}
			case len(args) == 1:
				data, err = os.ReadFile(args[0])
				if err != nil {
					return err
				}
				filename = filepath.Base(args[0])
			default:
				return errors.New("a file or --upload is required")
			}
			return printInspection(cmd.OutOrStdout(), data, filename, valuation.ParseTier(tier), rows)
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "base", "Valuation tier or plan name (defaults to the upload's tier with --upload)")
	cmd.Flags().IntVarP(&rows, "rows", "n", 20, "Number of orders to print")
	cmd.Flags().StringVar(&uploadID, "upload", "", "Inspect the archived original of this upload")
	return cmd
}

// fetchOriginal loads an upload's archived spreadsheet using the stack's
// database and object storage.
func fetchOriginal(ctx context.Context, uploadID string) (filename, tier string, data []byte, err error) {
	cfg, err := config.Load()
	if err != nil {
		return "", "", nil, err
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return "", "", nil, err
	}
	defer pool.Close()
	archive, err := s3storage.New(cfg)
	if err != nil {
		return "", "", nil, err
	}
	svc := vine.New(repository.NewOrderRepository(pool), vine.Options{Archive: archive})
	upload, data, err := svc.SourceFile(ctx, uploadID)
	if err != nil {
		return "", "", nil, fmt.Errorf("upload %s: %w", uploadID, err)
	}
	return upload.Filename, upload.Tier, data, nil
}

func printInspection(out io.Writer, data []byte, filename string, t valuation.Tier, rows int) error {
	batch, err := ingest.Parse(data, filename)
	if err != nil {
		return err
	}
	cancelled := cancellation.Set(batch.Orders)

	fmt.Fprintf(out, "file:     %s\n", filename)
	fmt.Fprintf(out, "layout:   %s\n", batch.Layout)
	fmt.Fprintf(out, "orders:   %d (skipped %d)\n", len(batch.Orders), batch.Skipped)
	fmt.Fprintf(out, "products: %d\n", len(batch.Products))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tDATE\tTYPE\tASIN\tETV\tVALUE\tCANCELLED")
	total := decimal.Zero
	for i, o := range batch.Orders {
		value := valuation.Compute(o.EstimatedValue, t)
		total = total.Add(value)
		if i >= rows {
			continue
		}
		date := ""
		if o.OrderDate != nil {
			date = o.OrderDate.Format("2006-01-02")
		}
		etv := ""
		if o.EstimatedValue.Valid {
			etv = o.EstimatedValue.Decimal.StringFixed(2)
		}
		_, isCancelled := cancelled[o.OrderNumber]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			o.OrderNumber, date, o.OrderType, o.ASIN, etv, value.StringFixed(2), isCancelled)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "total value (%s): %s\n", t, total.StringFixed(2))
	return nil
}
