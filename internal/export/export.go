// Package export writes transaction history to CSV or JSON files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/storage/models"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat accepts "csv" or "json".
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format          ExportFormat
	StartTime       time.Time
	EndTime         time.Time
	ChainID         uint64 // zero keeps every chain
	OperationFilter string
	OnlyConfirmed   bool
	OutputDir       string
}

// HistoryExporter handles transaction history export
type HistoryExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{
		logger: logger,
		now:    time.Now,
	}
}

var csvHeaders = []string{
	"created_at", "chain_id", "operation", "status", "hash", "from",
	"gas_limit", "gas_used", "block_number", "error_kind", "error_message", "explorer_url",
}

// Export filters, sorts and writes txs into OutputDir, returning the file path.
func (he *HistoryExporter) Export(txs []*models.Transaction, options ExportOptions) (string, error) {
	filtered := he.Filter(txs, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no transactions match the export criteria")
	}

	outputPath := filepath.Join(options.OutputDir, he.generateFilename(options))
	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := he.Write(file, filtered, options.Format); err != nil {
		return "", err
	}

	he.logger.Info("Transactions exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// Write encodes txs in order to w.
func (he *HistoryExporter) Write(w io.Writer, txs []*models.Transaction, format ExportFormat) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, txs)
	case FormatJSON:
		return he.writeJSON(w, txs)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// Filter keeps the rows matching options, oldest first.
func (he *HistoryExporter) Filter(txs []*models.Transaction, options ExportOptions) []*models.Transaction {
	var filtered []*models.Transaction
	for _, tx := range txs {
		if !options.StartTime.IsZero() && tx.CreatedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && tx.CreatedAt.After(options.EndTime) {
			continue
		}
		if options.ChainID != 0 && tx.ChainID != options.ChainID {
			continue
		}
		if options.OperationFilter != "" && tx.Operation != options.OperationFilter {
			continue
		}
		if options.OnlyConfirmed && tx.Status != models.StatusConfirmed {
			continue
		}
		filtered = append(filtered, tx)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})
	return filtered
}

func (he *HistoryExporter) generateFilename(options ExportOptions) string {
	prefix := "history_all"
	if options.OperationFilter != "" {
		prefix = "history_" + options.OperationFilter
	}
	if options.ChainID != 0 {
		prefix += "_" + strconv.FormatUint(options.ChainID, 10)
	}
	return fmt.Sprintf("%s_%s.%s", prefix, he.now().Format("20060102_150405"), options.Format)
}

func writeCSV(w io.Writer, txs []*models.Transaction) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, tx := range txs {
		record := []string{
			tx.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatUint(tx.ChainID, 10),
			tx.Operation,
			tx.Status,
			tx.Hash,
			tx.FromAddress,
			strconv.FormatUint(tx.GasLimit, 10),
			strconv.FormatUint(tx.GasUsed, 10),
			strconv.FormatUint(tx.BlockNumber, 10),
			tx.ErrorKind,
			tx.ErrorMessage,
			tx.ExplorerURL,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write transaction: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Record is the JSON shape of one history row.
type Record struct {
	CreatedAt    time.Time `json:"created_at"`
	ChainID      uint64    `json:"chain_id"`
	Operation    string    `json:"operation"`
	Status       string    `json:"status"`
	Hash         string    `json:"hash,omitempty"`
	From         string    `json:"from,omitempty"`
	GasLimit     uint64    `json:"gas_limit,omitempty"`
	GasUsed      uint64    `json:"gas_used,omitempty"`
	BlockNumber  uint64    `json:"block_number,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ExplorerURL  string    `json:"explorer_url,omitempty"`
}

func (he *HistoryExporter) writeJSON(w io.Writer, txs []*models.Transaction) error {
	records := make([]Record, 0, len(txs))
	for _, tx := range txs {
		records = append(records, Record{
			CreatedAt:    tx.CreatedAt.UTC(),
			ChainID:      tx.ChainID,
			Operation:    tx.Operation,
			Status:       tx.Status,
			Hash:         tx.Hash,
			From:         tx.FromAddress,
			GasLimit:     tx.GasLimit,
			GasUsed:      tx.GasUsed,
			BlockNumber:  tx.BlockNumber,
			ErrorKind:    tx.ErrorKind,
			ErrorMessage: tx.ErrorMessage,
			ExplorerURL:  tx.ExplorerURL,
		})
	}

	exportData := struct {
		ExportTime   time.Time     `json:"export_time"`
		Count        int           `json:"count"`
		Summary      ExportSummary `json:"summary"`
		Transactions []Record      `json:"transactions"`
	}{
		ExportTime:   he.now().UTC(),
		Count:        len(records),
		Summary:      calculateSummary(txs),
		Transactions: records,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported transactions
type ExportSummary struct {
	Total        int            `json:"total"`
	Confirmed    int            `json:"confirmed"`
	Failed       int            `json:"failed"`
	Cancelled    int            `json:"cancelled"`
	InFlight     int            `json:"in_flight"`
	TotalGasUsed uint64         `json:"total_gas_used"`
	ByOperation  map[string]int `json:"by_operation"`
	ByErrorKind  map[string]int `json:"by_error_kind,omitempty"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
}

// calculateSummary expects txs sorted by creation time.
func calculateSummary(txs []*models.Transaction) ExportSummary {
	summary := ExportSummary{
		Total:       len(txs),
		ByOperation: make(map[string]int),
	}
	if len(txs) == 0 {
		return summary
	}

	summary.StartDate = txs[0].CreatedAt.UTC()
	summary.EndDate = txs[len(txs)-1].CreatedAt.UTC()

	for _, tx := range txs {
		summary.ByOperation[tx.Operation]++
		summary.TotalGasUsed += tx.GasUsed

		switch tx.Status {
		case models.StatusConfirmed:
			summary.Confirmed++
		case models.StatusFailed:
			summary.Failed++
		case models.StatusCancelled:
			summary.Cancelled++
		default:
			summary.InFlight++
		}
		if tx.ErrorKind != "" {
			if summary.ByErrorKind == nil {
				summary.ByErrorKind = make(map[string]int)
			}
			summary.ByErrorKind[tx.ErrorKind]++
		}
	}
	return summary
}
