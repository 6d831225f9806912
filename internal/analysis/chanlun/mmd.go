package chanlun

import (
	"github.com/shopspring/decimal"

	"chanlun/internal/config"
)

// MMDRule 自定义（类）买卖点规则。在标准买卖点之后按线的顺序执行，
// 只能追加结果；同一根线上已有的同类买卖点不会被覆盖。
type MMDRule interface {
	Name() string
	Apply(c *ClassifyContext, i int) []MMD
}

func (c *ClassifyContext) Level() Level              { return c.level }
func (c *ClassifyContext) Policy() string            { return c.policy }
func (c *ClassifyContext) Settings() config.Settings { return c.r.cfg }
func (c *ClassifyContext) Len() int                  { return len(c.lines) }
func (c *ClassifyContext) Line(i int) LineView       { return c.lines[i] }
func (c *ClassifyContext) Force(i int) decimal.Decimal {
	return c.force[i]
}

// PivotExitingAt 以第 i 根线离开的中枢。
func (c *ClassifyContext) PivotExitingAt(i int) (Pivot, bool) {
	pi, ok := c.exitAt[i]
	if !ok {
		return Pivot{}, false
	}
	return c.pivots[pi], true
}

// Has 第 i 根线是否已有给定种类之一的买卖点。
func (c *ClassifyContext) Has(i int, kinds ...MMDKind) bool {
	_, ok := c.find(i, kinds...)
	return ok
}

func (c *ClassifyContext) find(i int, kinds ...MMDKind) (MMD, bool) {
	for _, m := range c.mmds[i] {
		for _, k := range kinds {
			if m.Kind == k {
				return m, true
			}
		}
	}
	return MMD{}, false
}

func (c *ClassifyContext) add(i int, kind MMDKind, pivot int, rule string) {
	if c.Has(i, kind) {
		return
	}
	c.mmds[i] = append(c.mmds[i], MMD{Kind: kind, Line: c.ref(i), Policy: c.policy, Pivot: pivot, Rule: rule})
}

func pick(l LineView, buy, sell MMDKind) MMDKind {
	if l.Dir == Down {
		return buy
	}
	return sell
}

// classify 先做标准买卖点与背驰，再执行类买卖点规则。
func (c *ClassifyContext) classify(extra []MMDRule) ([]MMD, []Divergence) {
	cfg := c.r.cfg
	var bcs []Divergence
	for i := range c.lines {
		l := c.lines[i]
		kind1 := pick(l, Buy1, Sell1)
		if cfg.BcTrend {
			if d, chain, ok := c.trendDivergence(i); ok {
				bcs = append(bcs, d)
				if d.Result && chain >= cfg.Mmd1MinPivots {
					c.add(i, kind1, d.Pivot, "trend_divergence")
				}
			}
		}
		if cfg.BcRange {
			if d, ok := c.rangeDivergence(i); ok {
				bcs = append(bcs, d)
				if d.Result && cfg.Mmd1FromRange {
					c.add(i, kind1, d.Pivot, "range_divergence")
				}
			}
		}
		c.second(i)
		c.third(i)
	}

	rules := append(append([]MMDRule(nil), c.r.builtinRules...), extra...)
	for i := range c.lines {
		for _, rule := range rules {
			for _, m := range rule.Apply(c, i) {
				c.add(i, m.Kind, m.Pivot, rule.Name())
			}
		}
	}

	var mmds []MMD
	for i := range c.lines {
		mmds = append(mmds, c.mmds[i]...)
	}
	return mmds, bcs
}

// second 二类：前一根同向线有一类买卖点，本线不创新低（高）。
func (c *ClassifyContext) second(i int) {
	if i < 2 {
		return
	}
	l, prev := c.lines[i], c.lines[i-2]
	first, ok := c.find(i-2, pick(l, Buy1, Sell1))
	if !ok {
		return
	}
	allowEqual := c.r.cfg.Mmd2AllowEqual
	if l.Dir == Down && !above(l.Low, prev.Low, allowEqual) {
		return
	}
	if l.Dir == Up && !above(prev.High, l.High, allowEqual) {
		return
	}
	c.add(i, pick(l, Buy2, Sell2), first.Pivot, "second")
}

// third 三类：离开中枢后的回抽不回到中枢区间。
func (c *ClassifyContext) third(i int) {
	if i < 1 {
		return
	}
	cfg := c.r.cfg
	p, ok := c.PivotExitingAt(i - 1)
	if !ok {
		return
	}
	l, exit := c.lines[i], c.lines[i-1]
	if l.Dir == exit.Dir {
		return
	}
	if cfg.Mmd3MaxLines > 0 && p.Lines > cfg.Mmd3MaxLines {
		return
	}
	kind := pick(l, Buy3, Sell3)
	if !cfg.Mmd23Merge && c.Has(i, pick(l, Buy2, Sell2)) {
		return
	}
	if l.Dir == Down {
		limit := p.ZG
		switch {
		case cfg.Mmd3UseGG:
			limit = p.GG
		case cfg.Mmd3Mode == config.Mmd3Middle:
			limit = (p.ZG + p.ZD) / 2
		}
		if l.Low <= limit {
			return
		}
	} else {
		limit := p.ZD
		switch {
		case cfg.Mmd3UseGG:
			limit = p.DD
		case cfg.Mmd3Mode == config.Mmd3Middle:
			limit = (p.ZG + p.ZD) / 2
		}
		if l.High >= limit {
			return
		}
	}
	c.add(i, kind, p.Index, "third")
}

// likeRule 类二/类三：前一根同向线带有二（三）类或其类买卖点，本线不创新极值，可选要求力度更弱。
type likeRule struct {
	name   string
	base   [2]MMDKind // [买, 卖]
	like   [2]MMDKind
	weaker bool
}

func (r likeRule) Name() string { return r.name }

func (r likeRule) Apply(c *ClassifyContext, i int) []MMD {
	if i < 2 {
		return nil
	}
	l, prev := c.Line(i), c.Line(i-2)
	side := 1
	if l.Dir == Down {
		side = 0
	}
	prior, ok := c.find(i-2, r.base[side], r.like[side])
	if !ok {
		return nil
	}
	if newExtreme(l, prev) {
		return nil
	}
	if r.weaker && !Diverges(c.Force(i), c.Force(i-2)) {
		return nil
	}
	if c.Has(i, r.base[side]) {
		return nil
	}
	return []MMD{{Kind: r.like[side], Pivot: prior.Pivot}}
}
