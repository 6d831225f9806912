package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// CandleCSVOptions 控制 CSV 数据行的时间格式与精度。
type CandleCSVOptions struct {
	Location       *time.Location
	PricePrecision int
	// UnixMillis 为 true 时时间列输出毫秒时间戳，便于回读。
	UnixMillis bool
}

const (
	// PrecisionAuto 根据 K 线价格区间自动决定精度。
	PrecisionAuto = math.MinInt32
	// PrecisionRaw 表示保留原始精度（等价于 strconv.FormatFloat(..., -1, 64)）
	PrecisionRaw = -1
)

const csvTimeLayout = "2006-01-02 15:04:05"

// BuildCandleCSV 生成 CSV 数据，首行包含列头。
func BuildCandleCSV(candles []Candle, opts CandleCSVOptions) string {
	if len(candles) == 0 {
		return ""
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	precision := opts.PricePrecision
	if precision == PrecisionAuto {
		precision = autoPrecisionFromCandles(candles)
	}
	var b strings.Builder
	b.WriteString("time,open,high,low,close,volume\n")
	for _, c := range candles {
		if opts.UnixMillis {
			b.WriteString(strconv.FormatInt(c.OpenTime, 10))
		} else {
			b.WriteString(time.UnixMilli(c.OpenTime).In(loc).Format(csvTimeLayout))
		}
		b.WriteByte(',')
		b.WriteString(formatPrice(c.Open, precision))
		b.WriteByte(',')
		b.WriteString(formatPrice(c.High, precision))
		b.WriteByte(',')
		b.WriteString(formatPrice(c.Low, precision))
		b.WriteByte(',')
		b.WriteString(formatPrice(c.Close, precision))
		b.WriteByte(',')
		b.WriteString(formatPlainFloat(c.Volume))
		b.WriteByte('\n')
	}
	return b.String()
}

// ReadCandleCSV 读取 time,open,high,low,close[,volume] 格式的数据。
// 时间列可以是毫秒时间戳，也可以是 "2006-01-02 15:04:05"/"2006-01-02"（按 loc 解析）。
// 首行若无法解析为数字则视为列头。
func ReadCandleCSV(r io.Reader, loc *time.Location) ([]Candle, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var out []Candle
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if len(rec) < 5 {
			return nil, fmt.Errorf("csv line %d: want at least 5 columns, got %d", line, len(rec))
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		ts, err := parseCSVTime(rec[0], loc)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		vals := make([]float64, 5)
		for i := 1; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %d: %w", line, i+1, err)
			}
			vals[i-1] = v
		}
		if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d volume: %w", line, err)
			}
			vals[4] = v
		}
		out = append(out, Candle{
			OpenTime: ts,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out, nil
}

func isHeader(rec []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	return err != nil
}

func parseCSVTime(raw string, loc *time.Location) (int64, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range []string{csvTimeLayout, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", raw)
}

func autoPrecisionFromCandles(candles []Candle) int {
	maxVal := 0.0
	for _, c := range candles {
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
			abs := math.Abs(v)
			if abs > maxVal {
				maxVal = abs
			}
		}
	}
	switch {
	case maxVal >= 1000:
		return 1
	case maxVal >= 100:
		return 2
	default:
		return PrecisionRaw
	}
}

func formatPrice(value float64, precision int) string {
	if precision == PrecisionRaw {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	s := strconv.FormatFloat(value, 'f', precision, 64)
	if precision > 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func formatPlainFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
