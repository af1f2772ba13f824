package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/storage/models"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func generateTestHistory() []*models.Transaction {
	row := func(offset time.Duration, op, status string, chainID, gasUsed uint64) *models.Transaction {
		tx := &models.Transaction{
			LifecycleID: op + status,
			ChainID:     chainID,
			Operation:   op,
			Status:      status,
			GasUsed:     gasUsed,
		}
		tx.CreatedAt = base.Add(offset)
		return tx
	}
	failed := row(time.Minute, "burn", models.StatusFailed, 8453, 30000)
	failed.ErrorKind = "reverted"
	return []*models.Transaction{
		row(3*time.Minute, "mint", models.StatusConfirmed, 8453, 90000),
		failed,
		row(2*time.Minute, "approve", models.StatusConfirmed, 8453, 46000),
		row(4*time.Minute, "mint", models.StatusCancelled, 84532, 0),
		row(5*time.Minute, "spawnBranch", models.StatusPending, 8453, 0),
	}
}

func newTestExporter() *HistoryExporter {
	he := NewHistoryExporter(zap.NewNop())
	he.now = func() time.Time { return base.Add(time.Hour) }
	return he
}

func TestExportCSV(t *testing.T) {
	he := newTestExporter()
	dir := t.TempDir()

	path, err := he.Export(generateTestHistory(), ExportOptions{Format: FormatCSV, OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history_all_20250301_130000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, csvHeaders, records[0])
	assert.Equal(t, "burn", records[1][2], "sorted by creation time")
	assert.Equal(t, "reverted", records[1][9])
}

func TestExportJSON(t *testing.T) {
	he := newTestExporter()

	path, err := he.Export(generateTestHistory(), ExportOptions{
		Format:    FormatJSON,
		ChainID:   8453,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var out struct {
		Count        int           `json:"count"`
		Summary      ExportSummary `json:"summary"`
		Transactions []Record      `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(content, &out))

	assert.Equal(t, 4, out.Count)
	assert.Equal(t, 2, out.Summary.Confirmed)
	assert.Equal(t, 1, out.Summary.Failed)
	assert.Equal(t, 1, out.Summary.InFlight)
	assert.Equal(t, uint64(166000), out.Summary.TotalGasUsed)
	assert.Equal(t, map[string]int{"reverted": 1}, out.Summary.ByErrorKind)
	assert.Equal(t, base.Add(time.Minute), out.Summary.StartDate)
	assert.Equal(t, base.Add(5*time.Minute), out.Summary.EndDate)
}

func TestExportFilters(t *testing.T) {
	he := newTestExporter()
	history := generateTestHistory()

	tests := []struct {
		name    string
		options ExportOptions
		want    int
	}{
		{"no filter", ExportOptions{}, 5},
		{"operation", ExportOptions{OperationFilter: "mint"}, 2},
		{"chain", ExportOptions{ChainID: 84532}, 1},
		{"confirmed only", ExportOptions{OnlyConfirmed: true}, 2},
		{"time window", ExportOptions{StartTime: base.Add(2 * time.Minute), EndTime: base.Add(4 * time.Minute)}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, he.Filter(history, tt.options), tt.want)
		})
	}
}

func TestExportNoMatches(t *testing.T) {
	he := newTestExporter()
	_, err := he.Export(generateTestHistory(), ExportOptions{
		Format:          FormatCSV,
		OperationFilter: "membrane",
		OutputDir:       t.TempDir(),
	})
	assert.Error(t, err)
}

func TestWriteUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	err := newTestExporter().Write(&buf, generateTestHistory(), "xml")
	assert.Error(t, err)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
}
