package chanlun

// strokeBuilder 按分型顺序折叠成笔，并在最后一个已固定的分型处保存检查点。
type strokeBuilder struct {
	r       *ruleSet
	strokes []Stroke
	pending int

	cpFx      int
	cpLen     int
	cpLast    Stroke
	cpPending int
}

func newStrokeBuilder(r *ruleSet) *strokeBuilder {
	return &strokeBuilder{r: r, pending: -1, cpPending: -1}
}

// update 从检查点重放分型，返回第一根可能变化的笔下标。
func (b *strokeBuilder) update(s *series, finalFx int) int {
	b.strokes = b.strokes[:b.cpLen]
	if b.cpLen > 0 {
		b.strokes[b.cpLen-1] = b.cpLast
	}
	b.pending = b.cpPending
	first := b.cpLen - 1
	if first < 0 {
		first = 0
	}

	for i := b.cpFx; i < finalFx; i++ {
		b.step(s, s.fractals[i])
	}
	b.cpFx = finalFx
	b.cpLen = len(b.strokes)
	if b.cpLen > 0 {
		b.cpLast = b.strokes[b.cpLen-1]
	}
	b.cpPending = b.pending
	for i := finalFx; i < len(s.fractals); i++ {
		b.step(s, s.fractals[i])
	}

	for k := first; k < len(b.strokes); k++ {
		st := &b.strokes[k]
		st.Index = k
		st.High, st.Low = b.r.strokeBound(s, []int{st.Start, st.End})
		st.StartTime = s.fractals[st.Start].Time
		st.EndTime = s.fractals[st.End].Time
		// 后面接上了由已固定分型构成的新笔，终点不会再被替换
		st.Done = k < b.cpLen-1
	}
	return first
}

func (b *strokeBuilder) step(s *series, f Fractal) {
	if f.Strength < b.r.fxMinStrength {
		return
	}
	if len(b.strokes) == 0 {
		if b.pending < 0 {
			b.pending = f.Index
			return
		}
		start := s.fractals[b.pending]
		if f.Kind == start.Kind {
			if moreExtreme(f, start) {
				b.pending = f.Index
			}
			return
		}
		if b.valid(s.candles, start, f) {
			b.strokes = append(b.strokes, Stroke{Dir: strokeDir(start), Start: start.Index, End: f.Index})
		}
		return
	}

	last := &b.strokes[len(b.strokes)-1]
	end := s.fractals[last.End]
	if f.Kind == end.Kind {
		// 反向笔出现之前，更高的顶（更低的底）替换最后一笔的终点
		if moreExtreme(f, end) {
			last.End = f.Index
		}
		return
	}
	if b.valid(s.candles, end, f) {
		b.strokes = append(b.strokes, Stroke{Dir: strokeDir(end), Start: end.Index, End: f.Index})
	}
}

func (b *strokeBuilder) valid(cs []Candle, start, end Fractal) bool {
	top, bottom := start, end
	if start.Kind == Bottom {
		top, bottom = end, start
	}
	if top.Value <= bottom.Value {
		return false
	}
	tc, bc := cs[top.Center], cs[bottom.Center]
	if tc.High <= bc.High || tc.Low <= bc.Low {
		return false
	}
	return b.r.strokeGap(cs, start, end)
}

func moreExtreme(f, than Fractal) bool {
	if f.Kind == Top {
		return f.Value > than.Value
	}
	return f.Value < than.Value
}

func strokeDir(start Fractal) Direction {
	if start.Kind == Bottom {
		return Up
	}
	return Down
}

// frozenStrokes 不会再变化的笔个数：最后一根已确认的笔及其之前的笔。
// 已确认的笔后面一定跟着新笔，因此最后一笔永远不在其中。
func frozenStrokes(strokes []Stroke) int {
	for k := len(strokes) - 1; k >= 0; k-- {
		if strokes[k].Done {
			return k + 1
		}
	}
	return 0
}
