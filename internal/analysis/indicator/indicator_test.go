package indicator

import (
	"math"
	"testing"

	"chanlun/internal/market"
)

func risingThenFalling(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		price := 100 + float64(i)
		if i >= n/2 {
			price = 100 + float64(n-i)
		}
		out[i] = market.Candle{OpenTime: int64(i) * 60_000, Open: price, High: price + 1, Low: price - 1, Close: price}
	}
	return out
}

func TestComputeMACDAlignedWithCandles(t *testing.T) {
	candles := risingThenFalling(120)
	m := ComputeMACD(candles, MACDSettings{})
	if len(m.Hist) != len(candles) || len(m.DIF) != len(candles) {
		t.Fatalf("series not aligned: %d %d", len(m.Hist), len(candles))
	}
	for i := 0; i < (MACDSettings{}).Lookback(); i++ {
		if m.Hist[i] != 0 {
			t.Fatalf("warmup bar %d should be zero, got %v", i, m.Hist[i])
		}
	}
	if m.DIF[50] <= 0 {
		t.Fatalf("expected positive DIF in uptrend, got %v", m.DIF[50])
	}
	if m.DIF[119] >= 0 {
		t.Fatalf("expected negative DIF at end of downtrend, got %v", m.DIF[119])
	}
	for i, v := range m.Hist {
		if math.IsNaN(v) {
			t.Fatalf("NaN at %d", i)
		}
	}
}

func TestComputeMACDShortSeries(t *testing.T) {
	m := ComputeMACD(risingThenFalling(10), MACDSettings{Fast: 12, Slow: 26, Signal: 9})
	if len(m.Hist) != 10 {
		t.Fatalf("expected 10 values, got %d", len(m.Hist))
	}
	for _, v := range m.Hist {
		if v != 0 {
			t.Fatalf("short series should be all zero")
		}
	}
}

func TestComputeAll(t *testing.T) {
	rep, err := ComputeAll(risingThenFalling(80), Settings{Symbol: "BTCUSDT", Interval: "1h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"ema", "rsi", "macd"} {
		if _, ok := rep.Values[key]; !ok {
			t.Fatalf("missing %s in report", key)
		}
	}
	if _, err := ComputeAll(nil, Settings{}); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
