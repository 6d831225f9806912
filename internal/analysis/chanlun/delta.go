package chanlun

// Change 某个集合在一次更新中的变化。Revised 为旧长度范围内内容改变的下标。
type Change struct {
	OldLen  int
	NewLen  int
	Revised []int
}

func (c Change) Added() int {
	if c.NewLen > c.OldLen {
		return c.NewLen - c.OldLen
	}
	return 0
}

// Removed 被撤回的未确认尾部数量。
func (c Change) Removed() int {
	if c.OldLen > c.NewLen {
		return c.OldLen - c.NewLen
	}
	return 0
}

func (c Change) Empty() bool {
	return c.OldLen == c.NewLen && len(c.Revised) == 0
}

// Delta 一次 Update 的变化摘要。Reset 表示发生了有界重算，下标整体平移。
type Delta struct {
	State       State
	Bars        int
	Reset       bool
	Candles     Change
	Fractals    Change
	Strokes     Change
	Segments    Change
	Pivots      map[PivotKey]Change
	MMDs        Change
	Divergences Change
}

type capture struct {
	candles  []Candle
	fractals []Fractal
	strokes  []Stroke
	segments []Segment
	pivots   map[PivotKey][]Pivot
	mmds     []MMD
	bcs      []Divergence
}

func (e *Engine) capture() capture {
	c := capture{
		strokes:  e.strokes,
		segments: e.segments,
		pivots:   e.pivots,
		mmds:     e.mmds,
		bcs:      e.bcs,
	}
	// 合并 K 线与分型会被原地修改，其余集合每次更新都是新切片
	c.candles = append([]Candle(nil), e.norm.Candles()...)
	c.fractals = append([]Fractal(nil), e.fractals...)
	return c
}

func (e *Engine) diff(old capture, reset bool, bars int) Delta {
	d := Delta{
		State:       e.state,
		Bars:        bars,
		Reset:       reset,
		Candles:     diffSlice(old.candles, e.norm.Candles(), reset),
		Fractals:    diffSlice(old.fractals, e.fractals, reset),
		Strokes:     diffSlice(old.strokes, e.strokes, reset),
		Segments:    diffSlice(old.segments, e.segments, reset),
		Pivots:      make(map[PivotKey]Change, len(e.pivots)),
		MMDs:        diffSlice(old.mmds, e.mmds, reset),
		Divergences: diffSlice(old.bcs, e.bcs, reset),
	}
	for key, pivots := range e.pivots {
		d.Pivots[key] = diffSlice(old.pivots[key], pivots, reset)
	}
	return d
}

func diffSlice[T comparable](old, cur []T, reset bool) Change {
	c := Change{OldLen: len(old), NewLen: len(cur)}
	for i := 0; i < len(old) && i < len(cur); i++ {
		if reset || old[i] != cur[i] {
			c.Revised = append(c.Revised, i)
		}
	}
	return c
}
