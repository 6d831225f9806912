package chanlun

import (
	"math"

	"chanlun/internal/analysis/indicator"
	"chanlun/internal/config"
	"chanlun/internal/market"
)

// series 一次计算中各阶段的只读视图。
type series struct {
	bars     []market.Candle
	candles  []Candle
	fractals []Fractal
	strokes  []Stroke
	segments []Segment
}

type boundFunc func(s *series, fx []int) (high, low float64)

type strokeCheck func(cs []Candle, a, b Fractal) bool

// ruleSet 由配置编译出的规则表，同一配置哈希的引擎共享，只读。
type ruleSet struct {
	cfg  config.Settings
	hash string

	fxStrict      bool
	fxEqual       bool
	fxMinStrength int

	strokeGap    strokeCheck
	strokeBound  boundFunc
	segmentBound boundFunc
	segmentOpen  bool
	policies     [2][]string
	relation     func(a, b Pivot) Direction
	force        forceFunc
	macd         indicator.MACDSettings
	builtinRules []MMDRule
}

func compileRules(cfg config.Settings) *ruleSet {
	r := &ruleSet{
		cfg:           cfg,
		hash:          cfg.Hash(),
		fxStrict:      cfg.FxRule == config.FxStrict,
		fxEqual:       cfg.FxEqual,
		fxMinStrength: cfg.FxMinStrength,
		strokeGap:     strokeChecks[cfg.BiType],
		strokeBound:   bounds[cfg.BiRange],
		segmentBound:  bounds[cfg.XdRange],
		segmentOpen:   cfg.XdOpenStroke,
		relation:      relations[cfg.ZsRelation],
		force:         forceMetrics[cfg.LdMetric],
		macd:          indicator.MACDSettings{Fast: cfg.MacdFast, Slow: cfg.MacdSlow, Signal: cfg.MacdSignal},
	}
	r.policies[LevelStroke] = append([]string(nil), cfg.ZsBiTypes...)
	r.policies[LevelSegment] = append([]string(nil), cfg.ZsXdTypes...)
	if r.strokeGap == nil {
		r.strokeGap = strokeChecks[config.BiOld]
	}
	if cfg.BiType == config.BiNew {
		minRaw := cfg.BiMinRaw
		r.strokeGap = func(cs []Candle, a, b Fractal) bool { return newStrokeGap(cs, a, b, minRaw) }
	}
	if cfg.MmdLikeSecond {
		r.builtinRules = append(r.builtinRules, likeRule{name: "like_second", base: [2]MMDKind{Buy2, Sell2}, like: [2]MMDKind{Buy2Like, Sell2Like}, weaker: cfg.MmdLikeWeaker})
	}
	if cfg.MmdLikeThird {
		r.builtinRules = append(r.builtinRules, likeRule{name: "like_third", base: [2]MMDKind{Buy3, Sell3}, like: [2]MMDKind{Buy3Like, Sell3Like}, weaker: cfg.MmdLikeWeaker})
	}
	return r
}

// 分型中心之间的最小间隔。老笔要求中间至少 4 根独立 K 线。
const (
	oldStrokeGap    = 5
	newStrokeGapMin = 4
	simpleStrokeGap = 3
)

var strokeChecks = map[string]strokeCheck{
	config.BiOld:       func(_ []Candle, a, b Fractal) bool { return b.Center-a.Center >= oldStrokeGap },
	config.BiSimple:    func(_ []Candle, a, b Fractal) bool { return b.Center-a.Center >= simpleStrokeGap },
	config.BiTopBottom: func(_ []Candle, a, b Fractal) bool { return b.Center-a.Center >= 1 },
}

// newStrokeGap 新笔：中间至少 3 根 K 线、原始 K 线足够，且两个分型区间互不包含。
func newStrokeGap(cs []Candle, a, b Fractal, minRaw int) bool {
	if b.Center-a.Center < newStrokeGapMin {
		return false
	}
	if cs[b.Center].BarEnd-cs[a.Center].BarStart+1 < minRaw {
		return false
	}
	ah, al := tripletSpan(cs, a.Center)
	bh, bl := tripletSpan(cs, b.Center)
	if (ah >= bh && al <= bl) || (bh >= ah && bl <= al) {
		return false
	}
	return true
}

func tripletSpan(cs []Candle, center int) (float64, float64) {
	high, low := math.Inf(-1), math.Inf(1)
	for i := center - 1; i <= center+1; i++ {
		if i < 0 || i >= len(cs) {
			continue
		}
		high = math.Max(high, cs[i].High)
		low = math.Min(low, cs[i].Low)
	}
	return high, low
}

var bounds = map[string]boundFunc{
	config.RangeDD: func(s *series, fx []int) (float64, float64) {
		high, low := math.Inf(-1), math.Inf(1)
		for _, i := range fx {
			high = math.Max(high, s.fractals[i].Value)
			low = math.Min(low, s.fractals[i].Value)
		}
		return high, low
	},
	config.RangeCK: func(s *series, fx []int) (float64, float64) {
		from, to := s.fractals[fx[0]].Center, s.fractals[fx[len(fx)-1]].Center
		high, low := math.Inf(-1), math.Inf(1)
		for _, c := range s.candles[from : to+1] {
			high = math.Max(high, c.High)
			low = math.Min(low, c.Low)
		}
		return high, low
	},
	config.RangeK: func(s *series, fx []int) (float64, float64) {
		from := s.candles[s.fractals[fx[0]].Center].BarStart
		to := s.candles[s.fractals[fx[len(fx)-1]].Center].BarEnd
		high, low := math.Inf(-1), math.Inf(1)
		for _, b := range s.bars[from : to+1] {
			high = math.Max(high, b.High)
			low = math.Min(low, b.Low)
		}
		return high, low
	},
}

var relations = map[string]func(a, b Pivot) Direction{
	config.RelationGGDD: func(a, b Pivot) Direction {
		switch {
		case b.DD > a.GG:
			return Up
		case b.GG < a.DD:
			return Down
		}
		return 0
	},
	config.RelationZGZD: func(a, b Pivot) Direction {
		switch {
		case b.ZD > a.ZG:
			return Up
		case b.ZG < a.ZD:
			return Down
		}
		return 0
	},
	config.RelationZGDD: func(a, b Pivot) Direction {
		switch {
		case b.DD > a.ZG:
			return Up
		case b.GG < a.ZD:
			return Down
		}
		return 0
	},
}
