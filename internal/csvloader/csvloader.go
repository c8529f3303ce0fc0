// Package csvloader implements archive.Loader by reading one CSV file per
// symbol from a directory, the simplest external collaborator an operator
// can point at without a broker or data-vendor subscription.
package csvloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mdreiback/backsim/internal/core"
)

// Loader reads "<symbol>.csv" files from Dir, each with a header row
// "date,open,high,low,close,volume" and dates formatted "2006-01-02".
type Loader struct {
	Dir string
}

// New creates a CSV-backed Loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load reads and parses the CSV file for symbol. #nosec G304 -- path is
// built from an operator-supplied directory and a simulation-configured
// symbol, not untrusted user input.
func (l *Loader) Load(_ context.Context, symbol core.Symbol) ([]core.Bar, error) {
	path := filepath.Join(l.Dir, strings.ToUpper(string(symbol))+".csv")
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var bars []core.Bar
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		bar, err := parseRecord(symbol, record, cols)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

type columns struct {
	date, open, high, low, close, volume int
}

func columnIndex(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var cols columns
	var ok bool
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{"date", &cols.date},
		{"open", &cols.open},
		{"high", &cols.high},
		{"low", &cols.low},
		{"close", &cols.close},
		{"volume", &cols.volume},
	} {
		*c.dst, ok = idx[c.name]
		if !ok {
			return columns{}, fmt.Errorf("missing required column %q", c.name)
		}
	}
	return cols, nil
}

func parseRecord(symbol core.Symbol, record []string, cols columns) (core.Bar, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[cols.date]))
	if err != nil {
		return core.Bar{}, fmt.Errorf("parsing date %q: %w", record[cols.date], err)
	}
	open, err := parseFloat(record[cols.open])
	if err != nil {
		return core.Bar{}, fmt.Errorf("parsing open: %w", err)
	}
	high, err := parseFloat(record[cols.high])
	if err != nil {
		return core.Bar{}, fmt.Errorf("parsing high: %w", err)
	}
	low, err := parseFloat(record[cols.low])
	if err != nil {
		return core.Bar{}, fmt.Errorf("parsing low: %w", err)
	}
	closePrice, err := parseFloat(record[cols.close])
	if err != nil {
		return core.Bar{}, fmt.Errorf("parsing close: %w", err)
	}
	volume, err := parseFloat(record[cols.volume])
	if err != nil {
		return core.Bar{}, fmt.Errorf("parsing volume: %w", err)
	}
	return core.Bar{
		Symbol: symbol,
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
