package chanlun

import (
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chanlun/internal/analysis/indicator"
	"chanlun/internal/config"
	"chanlun/internal/logger"
	"chanlun/internal/market"
)

type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSteady:
		return "steady"
	default:
		return "empty"
	}
}

// Engine 单个 (品种, 周期, 配置) 的增量缠论结构引擎，非并发安全。
type Engine struct {
	id       string
	symbol   string
	interval string
	r        *ruleSet
	extra    []MMDRule
	state    State
	closed   atomic.Bool

	bars        []market.Candle
	norm        *Normalizer
	fractals    []Fractal
	fxFinal     int
	prevCandles int
	sb          *strokeBuilder
	gb          *segmentBuilder

	strokes  []Stroke
	segments []Segment
	pivots   map[PivotKey][]Pivot
	mmds     []MMD
	bcs      []Divergence
	macd     indicator.MACD
}

type Option func(*Engine)

func WithID(id string) Option {
	return func(e *Engine) { e.id = id }
}

func WithInstrument(symbol, interval string) Option {
	return func(e *Engine) { e.symbol, e.interval = symbol, interval }
}

// WithMMDRules 追加自定义类买卖点规则，在内置规则之后执行。
func WithMMDRules(rules ...MMDRule) Option {
	return func(e *Engine) { e.extra = append(e.extra, rules...) }
}

func withRuleSet(r *ruleSet) Option {
	return func(e *Engine) { e.r = r }
}

// New 创建引擎；配置不合法时返回 *config.ConfigurationError。
func New(cfg config.Settings, opts ...Option) (*Engine, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{id: uuid.NewString()}
	for _, opt := range opts {
		opt(e)
	}
	if e.r == nil || e.r.hash != cfg.Hash() {
		e.r = compileRules(cfg)
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.state = StateEmpty
	e.norm = &Normalizer{}
	e.fractals = nil
	e.fxFinal = 0
	e.prevCandles = 0
	e.sb = newStrokeBuilder(e.r)
	e.gb = newSegmentBuilder(e.r)
	e.strokes = nil
	e.segments = nil
	e.pivots = make(map[PivotKey][]Pivot)
	e.mmds = nil
	e.bcs = nil
	e.macd = indicator.MACD{}
}

// Update 追加一批 K 线并增量重算。数据顺序错误时不修改任何状态。
func (e *Engine) Update(bars []market.Candle) (Delta, error) {
	if e.closed.Load() {
		return Delta{}, ErrEngineClosed
	}
	clean, err := e.norm.Validate(bars)
	if err != nil {
		return Delta{}, err
	}
	if len(clean) == 0 {
		return Delta{State: e.state}, nil
	}

	before := e.capture()
	if e.state == StateEmpty {
		logger.Debugf("chanlun %s %s@%s 冷启动, %d 根K线", e.id, e.symbol, e.interval, len(clean))
	}
	e.state = StateBuilding
	reset := false
	offset := len(e.bars)
	e.bars = append(e.bars, clean...)
	if limit := e.r.cfg.CacheSize; limit > 0 && len(e.bars) > limit {
		keep := limit * 3 / 4
		window := make([]market.Candle, keep)
		copy(window, e.bars[len(e.bars)-keep:])
		logger.Infof("chanlun %s %s@%s 缓存溢出(%d>%d), 保留最近 %d 根K线重算", e.id, e.symbol, e.interval, len(e.bars), limit, keep)
		e.reset()
		e.state = StateBuilding
		e.bars = window
		offset = 0
		clean = window
		reset = true
	}
	e.norm.Push(clean, offset)
	e.recompute()
	e.state = StateSteady

	if err := e.checkDrift(); err != nil {
		logger.Errorf("chanlun %s %s@%s %v", e.id, e.symbol, e.interval, err)
		return Delta{}, err
	}
	return e.diff(before, reset, len(clean)), nil
}

// checkDrift 核对各层结构的末端是否仍与原始 K 线对齐。
func (e *Engine) checkDrift() error {
	if len(e.bars) == 0 {
		return nil
	}
	last := e.bars[len(e.bars)-1].OpenTime
	drift := func(entity string, at int64) error {
		return &StructuralDriftError{Entity: entity, BarTime: last, EntityTime: at}
	}
	candles := e.norm.Candles()
	if len(candles) == 0 {
		return drift("合并K线", 0)
	}
	tail := candles[len(candles)-1]
	if tail.BarEnd != len(e.bars)-1 || tail.EndTime != last {
		return drift("合并K线", tail.EndTime)
	}
	if n := len(e.macd.Hist); n != len(e.bars) {
		at := int64(0)
		if n > 0 && n <= len(e.bars) {
			at = e.bars[n-1].OpenTime
		}
		return drift("MACD", at)
	}
	if n := len(e.strokes); n > 0 {
		st := e.strokes[n-1]
		if st.End >= len(e.fractals) || e.fractals[st.End].Center >= len(candles) || st.EndTime > last {
			return drift("笔", st.EndTime)
		}
	}
	for _, g := range e.segments {
		if g.End >= len(e.strokes) || g.EndTime != e.strokes[g.End].EndTime {
			return drift("线段", g.EndTime)
		}
	}
	return nil
}

func (e *Engine) recompute() {
	candles := e.norm.Candles()
	n := len(candles)

	e.fractals = e.fractals[:e.fxFinal]
	for _, f := range DetectFractals(candles, e.prevCandles-3, e.r) {
		f.Index = len(e.fractals)
		e.fractals = append(e.fractals, f)
	}
	e.fxFinal = finalFractals(e.fractals, n)
	e.prevCandles = n

	s := &series{bars: e.bars, candles: candles, fractals: e.fractals}
	e.sb.update(s, e.fxFinal)
	s.strokes = e.sb.strokes
	e.strokes = append([]Stroke(nil), s.strokes...)

	e.segments, _ = e.gb.update(s, frozenStrokes(s.strokes))
	s.segments = e.segments

	e.macd = indicator.ComputeMACD(e.bars, e.r.macd)
	e.classify(s)
}

func (e *Engine) classify(s *series) {
	e.pivots = make(map[PivotKey][]Pivot)
	e.mmds = nil
	e.bcs = nil
	levels := [2][]LineView{strokeLines(s), segmentLines(s)}
	for lv, lines := range levels {
		level := Level(lv)
		force := make([]decimal.Decimal, len(lines))
		for i, l := range lines {
			force[i] = e.r.force(e.macd.Hist, l.BarStart, l.BarEnd, l.Dir)
		}
		if e.r.cfg.BcLine {
			e.bcs = append(e.bcs, lineDivergences(level, lines, force, e.r.cfg.BcRequireExtreme)...)
		}
		for _, policy := range e.r.policies[level] {
			pivots := e.r.buildPivots(lines, level, policy, s.segments)
			e.pivots[PivotKey{Level: level, Policy: policy}] = pivots
			ctx := newClassifyContext(e.r, level, policy, lines, pivots, force)
			mmds, bcs := ctx.classify(e.extra)
			e.mmds = append(e.mmds, mmds...)
			e.bcs = append(e.bcs, bcs...)
		}
	}
	sort.SliceStable(e.mmds, func(i, j int) bool { return lineLess(e.mmds[i].Line, e.mmds[j].Line) })
	sort.SliceStable(e.bcs, func(i, j int) bool { return lineLess(e.bcs[i].Line, e.bcs[j].Line) })
}

func lineLess(a, b LineRef) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	return a.Index < b.Index
}

func strokeLines(s *series) []LineView {
	out := make([]LineView, len(s.strokes))
	for i, st := range s.strokes {
		out[i] = LineView{
			Dir:      st.Dir,
			High:     st.High,
			Low:      st.Low,
			BarStart: s.candles[s.fractals[st.Start].Center].BarStart,
			BarEnd:   s.candles[s.fractals[st.End].Center].BarEnd,
			Done:     st.Done,
		}
	}
	return out
}

func segmentLines(s *series) []LineView {
	out := make([]LineView, len(s.segments))
	for i, seg := range s.segments {
		first, last := s.strokes[seg.Start], s.strokes[seg.End]
		out[i] = LineView{
			Dir:      seg.Dir,
			High:     seg.High,
			Low:      seg.Low,
			BarStart: s.candles[s.fractals[first.Start].Center].BarStart,
			BarEnd:   s.candles[s.fractals[last.End].Center].BarEnd,
			Done:     seg.Done,
		}
	}
	return out
}

// Close 关闭后 Update 返回 ErrEngineClosed，已计算的结果仍可读取。
func (e *Engine) Close() { e.closed.Store(true) }

func (e *Engine) ID() string                { return e.id }
func (e *Engine) Symbol() string            { return e.symbol }
func (e *Engine) Interval() string          { return e.interval }
func (e *Engine) State() State              { return e.state }
func (e *Engine) Settings() config.Settings { return e.r.cfg }
func (e *Engine) ConfigHash() string        { return e.r.hash }

func (e *Engine) Bars() []market.Candle { return append([]market.Candle(nil), e.bars...) }
func (e *Engine) Candles() []Candle     { return append([]Candle(nil), e.norm.Candles()...) }
func (e *Engine) Fractals() []Fractal   { return append([]Fractal(nil), e.fractals...) }
func (e *Engine) Strokes() []Stroke     { return append([]Stroke(nil), e.strokes...) }
func (e *Engine) Segments() []Segment   { return append([]Segment(nil), e.segments...) }

// Pivots 返回指定级别与算法的中枢；未启用的算法返回空。
func (e *Engine) Pivots(level Level, policy string) []Pivot {
	return append([]Pivot(nil), e.pivots[PivotKey{Level: level, Policy: policy}]...)
}

// PivotKeys 已启用的中枢算法，按级别与配置顺序。
func (e *Engine) PivotKeys() []PivotKey {
	var keys []PivotKey
	for lv := LevelStroke; lv <= LevelSegment; lv++ {
		for _, p := range e.r.policies[lv] {
			keys = append(keys, PivotKey{Level: lv, Policy: p})
		}
	}
	return keys
}

func (e *Engine) BuySellPoints(ref LineRef) []MMD {
	var out []MMD
	for _, m := range e.mmds {
		if m.Line == ref {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) Divergences(ref LineRef) []Divergence {
	var out []Divergence
	for _, d := range e.bcs {
		if d.Line == ref {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) AllBuySellPoints() []MMD       { return append([]MMD(nil), e.mmds...) }
func (e *Engine) AllDivergences() []Divergence { return append([]Divergence(nil), e.bcs...) }

// MACDHist 与原始 K 线对齐的 MACD 柱。
func (e *Engine) MACDHist() []float64 { return append([]float64(nil), e.macd.Hist...) }
