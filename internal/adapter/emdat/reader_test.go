package emdat_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/emdat"
	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sheet = "EM-DAT Data"

func writeWorkbook(t *testing.T, header []string, rows ...[]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	path := filepath.Join(t.TempDir(), "EMDAT.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func fullHeader() []string {
	return append([]string{"DisNo.", "Disaster Type"}, emdat.Columns...)
}

func TestReader_Read(t *testing.T) {
	path := writeWorkbook(t, fullHeader(),
		[]any{"2000-0001-USA", "Storm", "USA", 2000, 1, 2000, 1, 10, nil, 1500, 2250.5},
		[]any{"2004-0002-CUB", "Storm", " CUB ", 2004, 9, 2004, 9, "", 3, nil, nil},
		[]any{"1999-0003", "Storm", "", 1999, 1, 1999, 1, 1, 1, 1, 1},
	)

	refs, err := emdat.NewReader(path, sheet, slog.Default()).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2, "rows without ISO are skipped")

	usa := refs[0]
	assert.Equal(t, "USA", usa.ISO)
	assert.Equal(t, domain.Int(2000), usa.StartYear)
	assert.Equal(t, domain.Int(1), usa.EndMonth)
	assert.Equal(t, domain.Float(10), usa.TotalDeaths)
	assert.False(t, usa.NoInjured.Valid)
	assert.Equal(t, domain.Float(1500), usa.TotalDamage)
	assert.Equal(t, domain.Float(2250.5), usa.TotalDamageAdjusted)

	cub := refs[1]
	assert.Equal(t, "CUB", cub.ISO)
	assert.False(t, cub.TotalDeaths.Valid)
	assert.Equal(t, domain.Float(3), cub.NoInjured)
}

func TestReader_MissingColumn(t *testing.T) {
	header := []string{"ISO", "Start Year", "Start Month", "End Year", "End Month", "Total Deaths"}
	path := writeWorkbook(t, header, []any{"USA", 2000, 1, 2000, 1, 10})

	_, err := emdat.NewReader(path, sheet, slog.Default()).Read(context.Background())
	require.ErrorIs(t, err, domain.ErrMissingColumn)
	assert.Contains(t, err.Error(), "No. Injured")
}

func TestReader_MissingSheet(t *testing.T) {
	path := writeWorkbook(t, fullHeader())

	_, err := emdat.NewReader(path, "Other", slog.Default()).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Other")
}

func TestReader_MissingFile(t *testing.T) {
	_, err := emdat.NewReader(filepath.Join(t.TempDir(), "none.xlsx"), sheet, slog.Default()).Read(context.Background())
	require.Error(t, err)
}
