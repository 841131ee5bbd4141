package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestWriteProducesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comparison_report_20260729.csv")
	now := time.Date(2026, time.July, 29, 12, 0, 0, 0, time.UTC)

	err := Write(path, []TableRow{
		{
			JobID: "job-1", TableName: "ORDERS", Schema: "APP",
			RowCount: 1000, MismatchCount: 1, Status: "MISMATCH",
			StartTime: now, EndTime: now.Add(time.Minute),
			SourceSQLFile: "source.sql", TargetSQLFile: "target.sql",
		},
	})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, header, records[0])
	assert.Equal(t, "job-1", records[1][0])
	assert.Equal(t, "MISMATCH", records[1][7])
}

func TestWriteEmptyRowsStillWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, Write(path, nil))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
