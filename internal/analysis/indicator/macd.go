package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"chanlun/internal/market"
)

type MACDSettings struct {
	Fast   int `json:"fast,omitempty"`
	Slow   int `json:"slow,omitempty"`
	Signal int `json:"signal,omitempty"`
}

// MACD 与原始 K 线逐根对齐的 DIF/DEA/柱，预热期填 0。
type MACD struct {
	DIF  []float64
	DEA  []float64
	Hist []float64
}

func NormalizeMACDSettings(in MACDSettings) MACDSettings {
	out := in
	if out.Fast <= 0 {
		out.Fast = 12
	}
	if out.Slow <= 0 {
		out.Slow = 26
	}
	if out.Signal <= 0 {
		out.Signal = 9
	}
	return out
}

// Lookback 首个有效柱之前的 K 线数。
func (s MACDSettings) Lookback() int {
	s = NormalizeMACDSettings(s)
	slow := s.Slow
	if s.Fast > slow {
		slow = s.Fast
	}
	return slow - 1 + s.Signal - 1
}

// ComputeMACD 计算对齐的 MACD；数据不足时全为 0。
func ComputeMACD(candles []market.Candle, cfg MACDSettings) MACD {
	return ComputeMACDFromCloses(market.Closes(candles), cfg)
}

func ComputeMACDFromCloses(closes []float64, cfg MACDSettings) MACD {
	cfg = NormalizeMACDSettings(cfg)
	n := len(closes)
	out := MACD{
		DIF:  make([]float64, n),
		DEA:  make([]float64, n),
		Hist: make([]float64, n),
	}
	// go-talib 在序列短于预热期时会越界
	if n <= cfg.Lookback() {
		return out
	}
	dif, dea, hist := talib.Macd(closes, cfg.Fast, cfg.Slow, cfg.Signal)
	copy(out.DIF, alignSeries(dif, n))
	copy(out.DEA, alignSeries(dea, n))
	copy(out.Hist, alignSeries(hist, n))
	for i := 0; i < cfg.Lookback(); i++ {
		out.DIF[i], out.DEA[i], out.Hist[i] = 0, 0, 0
	}
	return out
}

func alignSeries(src []float64, n int) []float64 {
	out := make([]float64, n)
	offset := n - len(src)
	for i, v := range src {
		if i+offset < 0 {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i+offset] = v
	}
	return out
}
