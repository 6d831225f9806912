package chanlun

import (
	"io"
	"math/rand"
	"os"
	"testing"

	"chanlun/internal/config"
	"chanlun/internal/logger"
	"chanlun/internal/market"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard, logger.LevelDebug)
	os.Exit(m.Run())
}

const minute = int64(60_000)

func bar(i int, high, low float64) market.Candle {
	mid := (high + low) / 2
	return market.Candle{OpenTime: int64(i) * minute, Open: mid, High: high, Low: low, Close: mid, Volume: 1}
}

// zigzag 在相邻转折点之间线性插值，每段 leg 根 K 线，K 线之间没有包含关系。
func zigzag(points []float64, leg int) []market.Candle {
	legs := make([]int, len(points)-1)
	for j := range legs {
		legs[j] = leg
	}
	return zigzagLegs(points, legs)
}

// zigzagLegs 同 zigzag，第 j 段用 legs[j] 根 K 线。
func zigzagLegs(points []float64, legs []int) []market.Candle {
	var out []market.Candle
	for j := 0; j+1 < len(points); j++ {
		from, to := points[j], points[j+1]
		for i := 0; i < legs[j]; i++ {
			c := from + (to-from)*float64(i)/float64(legs[j])
			out = append(out, bar(len(out), c+0.5, c-0.5))
		}
	}
	last := points[len(points)-1]
	out = append(out, bar(len(out), last+0.5, last-0.5))
	return out
}

// randomWalk 带包含关系的随机 K 线序列。
func randomWalk(n int, seed int64) []market.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]market.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price += rng.NormFloat64() * 1.5
		if price < 10 {
			price = 10
		}
		high := max(open, price) + rng.Float64()*1.2
		low := min(open, price) - rng.Float64()*1.2
		out[i] = market.Candle{OpenTime: int64(i) * minute, Open: open, High: high, Low: low, Close: price, Volume: 1 + rng.Float64()}
	}
	return out
}

func mustEngine(t *testing.T, params map[string]interface{}, opts ...Option) *Engine {
	t.Helper()
	cfg, err := config.FromParams(params)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func mustRules(t *testing.T, params map[string]interface{}) *ruleSet {
	t.Helper()
	cfg, err := config.FromParams(params)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return compileRules(cfg)
}

// strokeSeries 由转折点价格直接构造分型与笔，用于单独测试线段与中枢。
func strokeSeries(points []float64) *series {
	s := &series{}
	for k, p := range points {
		kind := Top
		if (k+1 < len(points) && points[k+1] > p) || (k+1 == len(points) && points[k-1] > p) {
			kind = Bottom
		}
		s.fractals = append(s.fractals, Fractal{Index: k, Kind: kind, Center: k * 5, Value: p, Time: int64(k) * minute, Done: true})
	}
	for k := 0; k+1 < len(points); k++ {
		dir := Up
		if points[k+1] < points[k] {
			dir = Down
		}
		s.strokes = append(s.strokes, Stroke{
			Index: k, Dir: dir, Start: k, End: k + 1,
			High: max(points[k], points[k+1]), Low: min(points[k], points[k+1]),
			StartTime: int64(k) * minute, EndTime: int64(k+1) * minute, Done: true,
		})
	}
	return s
}
