package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/willwe-xyz/willwe-app/internal/export"
	"github.com/willwe-xyz/willwe-app/internal/storage/models"
	"github.com/willwe-xyz/willwe-app/internal/ui/style"
)

var errHistoryDisabled = errors.New("transaction history is disabled (set postgres_url or history_file)")

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded transactions",
	}
	cmd.AddCommand(c.historyListCmd(), c.historyExportCmd())
	return cmd
}

func (c *cli) historyListCmd() *cobra.Command {
	var from string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&from, "from", "", "only transactions sent by this address")
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.RunE = c.offline(func(cmd *cobra.Command, _ []string) error {
		if c.app.Store == nil {
			return errHistoryDisabled
		}
		if from != "" {
			addr, err := parseAddress(from)
			if err != nil {
				return err
			}
			from = addr.Hex()
		}
		txs, err := c.app.Store.ListTransactions(cmd.Context(), from, limit, offset)
		if err != nil {
			return errors.Wrap(err, "list history")
		}
		if len(txs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no transactions recorded")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderHistory(txs))
		return nil
	})
	return cmd
}

func renderHistory(txs []*models.Transaction) string {
	palette := style.DefaultPalette()
	header := lipgloss.NewStyle().Foreground(palette.Primary).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	statusColor := map[string]lipgloss.Color{
		models.StatusConfirmed: palette.Success,
		models.StatusFailed:    palette.Error,
		models.StatusCancelled: palette.Warning,
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(palette.TextMuted)).
		Headers("TIME", "CHAIN", "OPERATION", "STATUS", "HASH", "ERROR").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 3 && row >= 0 && row < len(txs) {
				if color, ok := statusColor[txs[row].Status]; ok {
					return cell.Foreground(color)
				}
			}
			return cell
		})

	for _, tx := range txs {
		errText := tx.ErrorKind
		if tx.ErrorMessage != "" {
			errText = tx.ErrorMessage
		}
		t.Row(
			tx.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.FormatUint(tx.ChainID, 10),
			tx.Operation,
			tx.Status,
			shortHash(tx.Hash),
			errText,
		)
	}
	return t.String()
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}

func (c *cli) historyExportCmd() *cobra.Command {
	var (
		format    string
		outDir    string
		operation string
		chainID   uint64
		confirmed bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transaction history to CSV or JSON",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	cmd.Flags().StringVarP(&outDir, "out", "o", "exports", "output directory, or - for stdout")
	cmd.Flags().StringVar(&operation, "operation", "", "only this operation (e.g. mint)")
	cmd.Flags().Uint64Var(&chainID, "only-chain", 0, "only this chain id")
	cmd.Flags().BoolVar(&confirmed, "confirmed", false, "only confirmed transactions")
	cmd.RunE = c.offline(func(cmd *cobra.Command, _ []string) error {
		if c.app.Store == nil {
			return errHistoryDisabled
		}
		f, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		txs, err := c.app.Store.ListTransactions(cmd.Context(), "", 0, 0)
		if err != nil {
			return errors.Wrap(err, "load history")
		}

		opts := export.ExportOptions{
			Format:          f,
			ChainID:         chainID,
			OperationFilter: operation,
			OnlyConfirmed:   confirmed,
			OutputDir:       outDir,
		}
		if outDir == "-" {
			return c.app.Exporter.Write(cmd.OutOrStdout(), c.app.Exporter.Filter(txs, opts), f)
		}
		path, err := c.app.Exporter.Export(txs, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	})
	return cmd
}
