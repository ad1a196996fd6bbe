package replay

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"sweep-trading-bot/internal/market"
)

// LoadFixtureCSV reads a 1-minute candle fixture. Expected columns:
// openTime(ms),open,high,low,close[,volume]. A header row is skipped when the
// first field is not numeric.
func LoadFixtureCSV(path string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var candles []market.Candle
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		line++
		if len(record) < 5 {
			return nil, fmt.Errorf("fixture line %d: expected at least 5 columns, got %d", line, len(record))
		}

		openTime, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("fixture line %d: bad openTime %q", line, record[0])
		}

		c := market.Candle{OpenTime: openTime}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
		for i, dst := range fields {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("fixture line %d: bad value %q", line, record[i+1])
			}
			*dst = v
		}
		if len(record) > 5 {
			if v, err := strconv.ParseFloat(record[5], 64); err == nil {
				c.Volume = v
			}
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("fixture %s contains no candles", path)
	}
	return candles, nil
}

// WriteResultJSON dumps the full result (summary, trades, timeline) as
// indented JSON.
func WriteResultJSON(path string, res *Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// WriteTradesCSV dumps the trade list as a flat CSV for spreadsheet review.
func WriteTradesCSV(path string, trades []Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"setupId", "side", "entryTsMs", "entryPrice", "exitTsMs", "exitPrice",
		"stopPrice", "targetPrice", "exitReason", "notional", "rMultiple", "pnl",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write trades header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.SetupID, t.Side,
			strconv.FormatInt(t.EntryTsMs, 10), strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatInt(t.ExitTsMs, 10), strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.StopPrice, 'f', -1, 64), strconv.FormatFloat(t.TargetPrice, 'f', -1, 64),
			t.ExitReason,
			strconv.FormatFloat(t.Notional, 'f', 2, 64),
			strconv.FormatFloat(t.RMultiple, 'f', 4, 64),
			strconv.FormatFloat(t.PnL, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write trade row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
