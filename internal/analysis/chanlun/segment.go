package chanlun

import "chanlun/internal/logger"

// segmentBuilder 用特征序列分型划分线段。
// 已确认的线段只依赖已冻结的笔，因此确认后不再改变。
type segmentBuilder struct {
	r         *ruleSet
	confirmed []Segment
	cursor    int
	seed      BreakInfo
}

func newSegmentBuilder(r *ruleSet) *segmentBuilder {
	return &segmentBuilder{r: r}
}

type segmentEnd struct {
	end     int
	reason  string
	fractal SeqFractal
	brk     BreakInfo
}

type scanState int

const (
	scanPending scanState = iota
	scanFound
	scanBroken
)

// update 继续扫描新笔，返回全部线段（已确认 + 待定尾段）以及第一条变化的下标。
func (b *segmentBuilder) update(s *series, frozen int) ([]Segment, int) {
	first := len(b.confirmed)
	strokes := s.strokes
	pendingStart, pendingDir := -1, Direction(0)
	for {
		a, d, handoff, ok := b.start(strokes)
		if !ok {
			break
		}
		res, state := b.findEnd(s, a, d, frozen, handoff)
		if state == scanBroken {
			logger.Debugf("线段 %d 交接起点(笔 %d)被反向突破, 重新寻找起点", len(b.confirmed), a)
			b.seed = BreakInfo{}
			b.cursor = a
			continue
		}
		if state == scanPending {
			pendingStart, pendingDir = a, d
			break
		}
		seg := b.materialize(s, a, d, res)
		seg.Index = len(b.confirmed)
		seg.Done = true
		b.confirmed = append(b.confirmed, seg)
		b.cursor = res.end + 1
		b.seed = res.brk
	}

	out := make([]Segment, len(b.confirmed), len(b.confirmed)+1)
	copy(out, b.confirmed)
	if pendingStart >= 0 {
		if seg, ok := b.pending(s, pendingStart, pendingDir, frozen); ok {
			seg.Index = len(out)
			out = append(out, seg)
		}
	}
	return out, first
}

// start 下一段的起点：上一段结束时交接的起点，或在游标之后寻找首尾重叠的三笔。
func (b *segmentBuilder) start(strokes []Stroke) (a int, d Direction, handoff, ok bool) {
	if b.seed.NextDir != 0 {
		if b.seed.StartStroke >= len(strokes) {
			return 0, 0, false, false
		}
		return b.seed.StartStroke, b.seed.NextDir, true, true
	}
	for k := b.cursor; k+2 < len(strokes); k++ {
		if seedable(strokes[k], strokes[k+2]) {
			return k, strokes[k].Dir, false, true
		}
	}
	return 0, 0, false, false
}

func seedable(s1, s3 Stroke) bool {
	if s1.Low > s3.High || s3.Low > s1.High {
		return false
	}
	return exceeds(s3, s1, s1.Dir)
}

func exceeds(st, than Stroke, d Direction) bool {
	if d == Up {
		return st.High > than.High
	}
	return st.Low < than.Low
}

func (b *segmentBuilder) findEnd(s *series, a int, d Direction, frozen int, handoff bool) (segmentEnd, scanState) {
	strokes := s.strokes
	p := a
	for {
		// q: p 之后第一根创新高（低）的同向笔；未冻结的笔不参与判断
		q, bound := -1, frozen
		for j := p + 1; j < len(strokes) && j < frozen; j++ {
			if strokes[j].Dir == d {
				if exceeds(strokes[j], strokes[p], d) {
					q, bound = j, j
					break
				}
				continue
			}
			// 交接来的段在创出新极值之前，反向笔越过了段的起点
			if handoff && p == a && exceeds(strokes[j], strokes[a], -d) {
				return segmentEnd{}, scanBroken
			}
		}
		if p >= a+2 {
			if res, ok := b.testBreak(s, a, p, d, bound); ok {
				return res, scanFound
			}
		}
		if q < 0 {
			return segmentEnd{}, scanPending
		}
		p = q
	}
}

// testBreak 检查极值笔 p 之后的特征序列能否形成分型。
// 特征序列从段内第一根反向笔起整体做包含处理，p 之后的第一个元素可能并入前一个元素。
func (b *segmentBuilder) testBreak(s *series, a, p int, d Direction, bound int) (segmentEnd, bool) {
	strokes := s.strokes
	if p+3 >= bound {
		return segmentEnd{}, false
	}
	seq := buildSeq(strokes, a+1, p-1, d)
	middle := seqEntryOf(strokes, p+1)
	if n := len(seq); n > 0 && seqContains(seq[n-1], middle) {
		middle = mergeSeq(seq[n-1], middle, d)
		seq = seq[:n-1]
	}
	if len(seq) == 0 {
		return segmentEnd{}, false
	}
	left := seq[len(seq)-1]

	var right SeqEntry
	found := false
	for k := p + 3; k < bound; k += 2 {
		e := seqEntryOf(strokes, k)
		if seqContains(middle, e) {
			middle = mergeSeq(middle, e, d)
			continue
		}
		right, found = e, true
		break
	}
	if !found {
		return segmentEnd{}, false
	}
	kind := Top
	if d == Down {
		kind = Bottom
	}
	if !seqFractal(kind, left, middle, right) {
		return segmentEnd{}, false
	}

	end, err := traceEnd(strokes, a, d, middle)
	if err != nil {
		err.Segment = len(b.confirmed)
		logger.Warnf("线段划分跳过候选点: %v", err)
		return segmentEnd{}, false
	}
	res := segmentEnd{
		end:     end,
		fractal: SeqFractal{Kind: kind, Left: left, Middle: middle, Right: right},
		brk:     BreakInfo{NextDir: -d, StartStroke: end + 1, EndStroke: -1},
	}
	gap := (d == Up && middle.Low > left.High) || (d == Down && middle.High < left.Low)
	if !gap {
		res.reason = ReasonTopFractal
		if kind == Bottom {
			res.reason = ReasonBottomFractal
		}
		return res, true
	}

	// 有缺口：新一段自身的特征序列也要出现反向分型
	opp, ok := firstSeqFractal(strokes, end+2, bound, -d)
	if !ok {
		return segmentEnd{}, false
	}
	res.reason = ReasonDual
	if next, err := traceEnd(strokes, end+1, -d, opp.Middle); err == nil {
		res.brk.EndStroke = next
	} else {
		err.Segment = len(b.confirmed) + 1
		logger.Warnf("线段划分: %v", err)
	}
	return res, true
}

// traceEnd 由分型中间元素的极值笔回退一笔，得到从 a 开始、方向为 d 的线段终点。
func traceEnd(strokes []Stroke, a int, d Direction, middle SeqEntry) (int, *ProvenanceError) {
	end := middle.Peak - 1
	if middle.Peak < middle.First || middle.Peak > middle.Last ||
		end < a+2 || end >= len(strokes) || strokes[end].Dir != d {
		return -1, &ProvenanceError{Entry: middle}
	}
	return end, nil
}

func seqEntryOf(strokes []Stroke, k int) SeqEntry {
	return SeqEntry{High: strokes[k].High, Low: strokes[k].Low, First: k, Last: k, Peak: k}
}

func seqContains(x, e SeqEntry) bool {
	return (e.High <= x.High && e.Low >= x.Low) || (e.High >= x.High && e.Low <= x.Low)
}

// mergeSeq 特征序列的包含处理，向上取高高，向下取低低。
func mergeSeq(x, e SeqEntry, d Direction) SeqEntry {
	if d == Up {
		if e.High > x.High {
			x.Peak = e.Peak
		}
		x.High = max(x.High, e.High)
		x.Low = max(x.Low, e.Low)
	} else {
		if e.Low < x.Low {
			x.Peak = e.Peak
		}
		x.High = min(x.High, e.High)
		x.Low = min(x.Low, e.Low)
	}
	x.Last = e.Last
	x.Merged = true
	return x
}

// buildSeq 对 from..to（步长 2）的笔做包含处理。
func buildSeq(strokes []Stroke, from, to int, d Direction) []SeqEntry {
	var seq []SeqEntry
	for k := from; k <= to; k += 2 {
		e := seqEntryOf(strokes, k)
		if n := len(seq); n > 0 && seqContains(seq[n-1], e) {
			seq[n-1] = mergeSeq(seq[n-1], e, d)
			continue
		}
		seq = append(seq, e)
	}
	return seq
}

func seqFractal(kind FractalKind, l, m, r SeqEntry) bool {
	if kind == Top {
		return m.High > l.High && m.High > r.High && r.Low < m.Low
	}
	return m.Low < l.Low && m.Low < r.Low && r.High > m.High
}

// firstSeqFractal 在 from 开始、bound 之前的同向笔上找第一个分型，方向 d 为新段方向。
func firstSeqFractal(strokes []Stroke, from, bound int, d Direction) (SeqFractal, bool) {
	// 新段向下时特征序列是向上的笔，找底分型
	kind := Bottom
	if d == Up {
		kind = Top
	}
	var seq []SeqEntry
	for k := from; k < bound; k += 2 {
		e := seqEntryOf(strokes, k)
		if n := len(seq); n > 0 && seqContains(seq[n-1], e) {
			seq[n-1] = mergeSeq(seq[n-1], e, d)
			continue
		}
		seq = append(seq, e)
		if n := len(seq); n >= 3 && seqFractal(kind, seq[n-3], seq[n-2], seq[n-1]) {
			return SeqFractal{Kind: kind, Left: seq[n-3], Middle: seq[n-2], Right: seq[n-1]}, true
		}
	}
	return SeqFractal{}, false
}

func (b *segmentBuilder) materialize(s *series, a int, d Direction, res segmentEnd) Segment {
	seg := Segment{
		Dir:     d,
		Start:   a,
		End:     res.end,
		Reason:  res.reason,
		Fractal: res.fractal,
		Break:   res.brk,
	}
	b.fillBounds(s, &seg)
	return seg
}

// pending 未确认的尾段：只延伸到最后一根与段同向的笔，未冻结的笔受 xd_open_stroke 控制。
func (b *segmentBuilder) pending(s *series, a int, d Direction, frozen int) (Segment, bool) {
	end := -1
	for k := len(s.strokes) - 1; k >= a; k-- {
		if s.strokes[k].Dir != d {
			continue
		}
		if k >= frozen && !b.r.segmentOpen {
			continue
		}
		end = k
		break
	}
	if end < a+2 {
		return Segment{}, false
	}
	seg := Segment{Dir: d, Start: a, End: end, Reason: ReasonPending}
	b.fillBounds(s, &seg)
	return seg, true
}

func (b *segmentBuilder) fillBounds(s *series, seg *Segment) {
	fx := make([]int, 0, seg.End-seg.Start+2)
	fx = append(fx, s.strokes[seg.Start].Start)
	for k := seg.Start; k <= seg.End; k++ {
		fx = append(fx, s.strokes[k].End)
	}
	seg.High, seg.Low = b.r.segmentBound(s, fx)
	seg.StartTime = s.fractals[fx[0]].Time
	seg.EndTime = s.fractals[fx[len(fx)-1]].Time
}
