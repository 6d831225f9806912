package chanlun

import (
	"github.com/shopspring/decimal"

	"chanlun/internal/config"
)

// forceFunc 计算一段原始 K 线区间 [from,to] 上的力度。
type forceFunc func(hist []float64, from, to int, d Direction) decimal.Decimal

var forceMetrics = map[string]forceFunc{
	config.MetricHistSum:  histSum,
	config.MetricHistPeak: histPeak,
}

// histSum 向上取红柱面积，向下取绿柱面积的绝对值。
func histSum(hist []float64, from, to int, d Direction) decimal.Decimal {
	sum := decimal.Zero
	for i := max(from, 0); i <= to && i < len(hist); i++ {
		if v := signed(hist[i], d); v > 0 {
			sum = sum.Add(decimal.NewFromFloat(v))
		}
	}
	return sum
}

func histPeak(hist []float64, from, to int, d Direction) decimal.Decimal {
	peak := decimal.Zero
	for i := max(from, 0); i <= to && i < len(hist); i++ {
		if v := decimal.NewFromFloat(signed(hist[i], d)); v.GreaterThan(peak) {
			peak = v
		}
	}
	return peak
}

func signed(v float64, d Direction) float64 {
	if d == Down {
		return -v
	}
	return v
}

// Force 计算 MACD 柱在 [from,to] 上的力度，metric 为 hist_sum 或 hist_peak。
func Force(hist []float64, from, to int, d Direction, metric string) decimal.Decimal {
	fn, ok := forceMetrics[metric]
	if !ok {
		fn = histSum
	}
	return fn(hist, from, to, d)
}

// Diverges 后一段力度严格小于前一段即为背驰；相等不算。
func Diverges(cur, prev decimal.Decimal) bool {
	return cur.LessThan(prev)
}

// ClassifyContext 一个级别、一种中枢算法下的分类输入，自定义规则通过它读取结构。
type ClassifyContext struct {
	r      *ruleSet
	level  Level
	policy string
	lines  []LineView
	pivots []Pivot
	force  []decimal.Decimal
	// exitAt[i] 为以第 i 根线离开的中枢下标
	exitAt map[int]int
	mmds   map[int][]MMD
}

func newClassifyContext(r *ruleSet, level Level, policy string, lines []LineView, pivots []Pivot, force []decimal.Decimal) *ClassifyContext {
	c := &ClassifyContext{
		r:      r,
		level:  level,
		policy: policy,
		lines:  lines,
		pivots: pivots,
		force:  force,
		exitAt: make(map[int]int, len(pivots)),
		mmds:   make(map[int][]MMD),
	}
	for _, p := range pivots {
		if p.Exit >= 0 {
			c.exitAt[p.Exit] = p.Index
		}
	}
	return c
}

func (c *ClassifyContext) ref(i int) LineRef { return LineRef{Level: c.level, Index: i} }

func newExtreme(cur, prev LineView) bool {
	if cur.Dir == Up {
		return cur.High > prev.High
	}
	return cur.Low < prev.Low
}

func beyondPivot(l LineView, p Pivot) bool {
	if l.Dir == Up {
		return l.High > p.GG
	}
	return l.Low < p.DD
}

func (c *ClassifyContext) divergence(kind DivergenceKind, i, prev, pivot int) Divergence {
	return Divergence{
		Kind:      kind,
		Line:      c.ref(i),
		Compare:   c.ref(prev),
		Policy:    c.policy,
		Pivot:     pivot,
		Result:    Diverges(c.force[i], c.force[prev]),
		Force:     c.force[i].InexactFloat64(),
		PrevForce: c.force[prev].InexactFloat64(),
	}
}

// lineDivergences 笔/段背驰：与前一根同向线比较，不依赖中枢算法。
func lineDivergences(level Level, lines []LineView, force []decimal.Decimal, requireExtreme bool) []Divergence {
	kind := BCStroke
	if level == LevelSegment {
		kind = BCSegment
	}
	var out []Divergence
	for i := 2; i < len(lines); i++ {
		if requireExtreme && !newExtreme(lines[i], lines[i-2]) {
			continue
		}
		out = append(out, Divergence{
			Kind:      kind,
			Line:      LineRef{Level: level, Index: i},
			Compare:   LineRef{Level: level, Index: i - 2},
			Pivot:     -1,
			Result:    Diverges(force[i], force[i-2]),
			Force:     force[i].InexactFloat64(),
			PrevForce: force[i-2].InexactFloat64(),
		})
	}
	return out
}

// rangeDivergence 盘整背驰：离开段与同向的进入段比较。
func (c *ClassifyContext) rangeDivergence(i int) (Divergence, bool) {
	pi, ok := c.exitAt[i]
	if !ok {
		return Divergence{}, false
	}
	p := c.pivots[pi]
	l := c.lines[i]
	if p.Entry < 0 || c.lines[p.Entry].Dir != l.Dir {
		return Divergence{}, false
	}
	if c.r.cfg.BcRequireExtreme && !beyondPivot(l, p) {
		return Divergence{}, false
	}
	return c.divergence(BCRange, i, p.Entry, pi), true
}

// trendDivergence 趋势背驰：中枢与前一个中枢同向排列，离开段与进入段比较。
// 返回的 chain 为连续同向排列的中枢个数。
func (c *ClassifyContext) trendDivergence(i int) (Divergence, int, bool) {
	pi, ok := c.exitAt[i]
	if !ok || pi == 0 {
		return Divergence{}, 0, false
	}
	p := c.pivots[pi]
	l := c.lines[i]
	if c.r.relation(c.pivots[pi-1], p) != l.Dir {
		return Divergence{}, 0, false
	}
	if p.Entry < 0 || c.lines[p.Entry].Dir != l.Dir {
		return Divergence{}, 0, false
	}
	if c.r.cfg.BcRequireExtreme && !beyondPivot(l, p) {
		return Divergence{}, 0, false
	}
	chain := 2
	for k := pi - 1; k > 0 && c.r.relation(c.pivots[k-1], c.pivots[k]) == l.Dir; k-- {
		chain++
	}
	return c.divergence(BCTrend, i, p.Entry, pi), chain, true
}
