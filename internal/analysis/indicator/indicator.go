package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"chanlun/internal/market"
)

type Settings struct {
	Symbol   string
	Interval string
	EMA      int
	RSI      RSISettings
	MACD     MACDSettings
}

type RSISettings struct {
	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`
}

type IndicatorValue struct {
	Latest float64 `json:"latest"`
	State  string  `json:"state,omitempty"`
	Note   string  `json:"note,omitempty"`
}

// Report 最新一根 K 线上的指标快照，供 CLI 展示。
type Report struct {
	Symbol   string                    `json:"symbol"`
	Interval string                    `json:"interval"`
	Count    int                       `json:"count"`
	Values   map[string]IndicatorValue `json:"values"`
}

func ComputeAll(candles []market.Candle, cfg Settings) (Report, error) {
	rep := Report{
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval,
		Count:    len(candles),
		Values:   make(map[string]IndicatorValue),
	}
	if len(candles) == 0 {
		return rep, fmt.Errorf("no candles")
	}
	closes := market.Closes(candles)
	lastClose := closes[len(closes)-1]

	if cfg.EMA <= 0 {
		cfg.EMA = 21
	}
	if len(closes) > cfg.EMA {
		ema := lastValid(talib.Ema(closes, cfg.EMA))
		rep.Values["ema"] = IndicatorValue{
			Latest: round4(ema),
			State:  relativeState(lastClose, ema),
			Note:   fmt.Sprintf("EMA%d vs price", cfg.EMA),
		}
	}

	if cfg.RSI.Period <= 0 {
		cfg.RSI.Period = 14
	}
	if cfg.RSI.Overbought == 0 {
		cfg.RSI.Overbought = 70
	}
	if cfg.RSI.Oversold == 0 {
		cfg.RSI.Oversold = 30
	}
	if len(closes) > cfg.RSI.Period {
		rsiVal := lastValid(talib.Rsi(closes, cfg.RSI.Period))
		state := "neutral"
		switch {
		case rsiVal >= cfg.RSI.Overbought:
			state = "overbought"
		case rsiVal <= cfg.RSI.Oversold:
			state = "oversold"
		}
		rep.Values["rsi"] = IndicatorValue{
			Latest: round4(rsiVal),
			State:  state,
			Note:   fmt.Sprintf("period=%d thresholds=%.1f/%.1f", cfg.RSI.Period, cfg.RSI.Oversold, cfg.RSI.Overbought),
		}
	}

	macd := ComputeMACDFromCloses(closes, cfg.MACD)
	last := len(closes) - 1
	rep.Values["macd"] = IndicatorValue{
		Latest: round4(macd.DIF[last]),
		State:  polarityState(macd.Hist[last]),
		Note:   fmt.Sprintf("signal=%.4f hist=%.4f", macd.DEA[last], macd.Hist[last]),
	}
	return rep, nil
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func relativeState(price, ref float64) string {
	if ref == 0 {
		return "unknown"
	}
	switch {
	case price > ref*1.002:
		return "above"
	case price < ref*0.998:
		return "below"
	default:
		return "touch"
	}
}

func polarityState(v float64) string {
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	default:
		return "flat"
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
