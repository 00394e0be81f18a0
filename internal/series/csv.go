package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/newthinker/nvtrotate/internal/core"
)

// Columns is the header of the long-format table.
var Columns = []string{
	"date", "symbol", "price", "market_cap", "volume",
	"time", "transaction_count", "current_supply", "new_addresses", "active_addresses",
	"nvt",
}

// WriteCSV writes records as the long-format table.
func WriteCSV(w io.Writer, records []core.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Date.Format(core.DateLayout),
			r.Symbol,
			r.Price.String(),
			r.MarketCap.String(),
			r.Volume.String(),
			strconv.FormatInt(r.Time, 10),
			strconv.FormatInt(r.TransactionCount, 10),
			r.CurrentSupply.String(),
			strconv.FormatInt(r.NewAddresses, 10),
			strconv.FormatInt(r.ActiveAddresses, 10),
			r.NVT.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV.
func ReadCSV(r io.Reader) ([]core.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, c := range Columns {
		if header[i] != c {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, header[i], c)
		}
	}

	var out []core.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (core.Record, error) {
	var (
		r   core.Record
		err error
	)
	if r.Date, err = core.ParseDate(row[0]); err != nil {
		return r, err
	}
	r.Symbol = row[1]
	floats := []*core.NullFloat64{&r.Price, &r.MarketCap, &r.Volume}
	for i, f := range floats {
		if *f, err = core.ParseNullFloat64(row[2+i]); err != nil {
			return r, err
		}
	}
	ints := map[int]*int64{5: &r.Time, 6: &r.TransactionCount, 8: &r.NewAddresses, 9: &r.ActiveAddresses}
	for col, p := range ints {
		if *p, err = strconv.ParseInt(row[col], 10, 64); err != nil {
			return r, err
		}
	}
	if r.CurrentSupply, err = core.ParseNullFloat64(row[7]); err != nil {
		return r, err
	}
	if r.NVT, err = core.ParseNullFloat64(row[10]); err != nil {
		return r, err
	}
	return r, nil
}
