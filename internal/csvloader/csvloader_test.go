package csvloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, symbol, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(body), 0o600))
}

func TestLoad_ParsesAndSortsAscending(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL", "date,open,high,low,close,volume\n"+
		"2023-01-04,101,106,99,104,1100\n"+
		"2023-01-03,100,105,98,103,1000\n")

	l := New(dir)
	bars, err := l.Load(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Date.Before(bars[1].Date))
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 104.0, bars[1].Close)
}

func TestLoad_HeaderOrderIsIndependent(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "MSFT", "close,date,volume,low,high,open\n"+
		"50,2023-01-03,900,48,52,49\n")

	l := New(dir)
	bars, err := l.Load(context.Background(), "MSFT")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 49.0, bars[0].Open)
	assert.Equal(t, 50.0, bars[0].Close)
}

func TestLoad_MissingColumnErrors(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "BAD", "date,open,high,low,close\n2023-01-03,1,2,0.5,1.5\n")

	l := New(dir)
	_, err := l.Load(context.Background(), "BAD")
	assert.ErrorContains(t, err, "volume")
}

func TestLoad_MissingFileErrors(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.Load(context.Background(), "NOPE")
	assert.Error(t, err)
}
