package chanlun

import (
	"math"

	"chanlun/internal/config"
)

// pivotScope 扫描范围：成员在 [lo,hi]，进入段不早于 entryMin，离开段不晚于 exitMax。
type pivotScope struct {
	lo, hi   int
	entryMin int
	exitMax  int
}

// PivotKey 中枢结果按级别与算法区分。
type PivotKey struct {
	Level  Level
	Policy string
}

func fullScope(n int) pivotScope {
	return pivotScope{lo: 0, hi: n - 1, entryMin: 0, exitMax: n - 1}
}

// buildPivots 按给定算法在同级别的线上构建中枢。segs 只在笔级别的段内中枢和方向中枢中使用。
func (r *ruleSet) buildPivots(lines []LineView, level Level, policy string, segs []Segment) []Pivot {
	var out []Pivot
	switch policy {
	case config.PolicyWithinSegment:
		for _, seg := range segs {
			scope := pivotScope{lo: seg.Start + 1, hi: seg.End - 1, entryMin: seg.Start, exitMax: seg.End}
			if !seg.Done {
				scope.hi = seg.End
			}
			out = append(out, r.scanPivots(lines, scope, nil)...)
		}
	case config.PolicyDirectional:
		accept := func(i int) bool {
			if i < 1 {
				return false
			}
			if level != LevelStroke {
				return true
			}
			if seg, ok := containingSegment(segs, i); ok {
				return lines[i].Dir != seg.Dir
			}
			return true
		}
		out = r.scanPivots(lines, fullScope(len(lines)), accept)
	case config.PolicyClassified:
		out = r.expandPivots(lines, r.scanPivots(lines, fullScope(len(lines)), nil))
	default:
		out = r.scanPivots(lines, fullScope(len(lines)), nil)
	}
	for i := range out {
		out[i].Index = i
		out[i].Level = level
		out[i].Policy = policy
	}
	return out
}

func containingSegment(segs []Segment, stroke int) (Segment, bool) {
	for _, seg := range segs {
		if stroke >= seg.Start && stroke <= seg.End {
			return seg, true
		}
	}
	return Segment{}, false
}

func (r *ruleSet) scanPivots(lines []LineView, scope pivotScope, accept func(int) bool) []Pivot {
	var out []Pivot
	touch := r.cfg.ZsTouch
	maxLines := r.cfg.ZsMaxLines
	limit := min(scope.exitMax, len(lines)-1)
	i := scope.lo
	for i+2 <= scope.hi {
		if accept != nil && !accept(i) {
			i++
			continue
		}
		zg := min(lines[i].High, lines[i+1].High, lines[i+2].High)
		zd := max(lines[i].Low, lines[i+1].Low, lines[i+2].Low)
		if zg < zd || (zg == zd && !touch) {
			i++
			continue
		}
		// 第 j 根线只有在下一根线回到中枢区间时才算成员，否则它就是离开段
		j := i + 3
		for j <= scope.hi && j+1 <= limit && (maxLines == 0 || j-i < maxLines) &&
			overlapsCore(lines[j], zg, zd, touch) && overlapsCore(lines[j+1], zg, zd, touch) {
			j++
		}
		p := Pivot{First: i, Last: j - 1, Entry: -1, Exit: -1, ZG: zg, ZD: zd}
		if i-1 >= scope.entryMin && i-1 >= 0 {
			p.Entry = i - 1
		}
		if j <= scope.exitMax && j < len(lines) {
			p.Exit = j
		}
		r.finishPivot(lines, &p)
		out = append(out, p)
		// 离开段不作为下一个中枢的成员
		i = j + 1
	}
	return out
}

func overlapsCore(l LineView, zg, zd float64, touch bool) bool {
	if touch {
		return l.Low <= zg && l.High >= zd
	}
	return l.Low < zg && l.High > zd
}

func (r *ruleSet) finishPivot(lines []LineView, p *Pivot) {
	p.GG, p.DD = math.Inf(-1), math.Inf(1)
	for k := p.First; k <= p.Last; k++ {
		p.GG = math.Max(p.GG, lines[k].High)
		p.DD = math.Min(p.DD, lines[k].Low)
	}
	p.Lines = p.Last - p.First + 1
	p.Depth = max(p.Depth, pivotDepth(p.Lines))
	p.Type = PivotRange
	switch {
	case p.Exit < 0:
	case p.Entry < 0:
		p.Type = PivotType(lines[p.Exit].Dir)
	case lines[p.Entry].Dir == lines[p.Exit].Dir:
		p.Type = PivotType(lines[p.Exit].Dir)
	}
	// 离开段已确认，且其后一根已确认的线没有回到中枢（或离开段本身不与中枢重叠）
	if p.Exit >= 0 && lines[p.Exit].Done {
		next := p.Exit + 1
		p.Done = !overlapsCore(lines[p.Exit], p.ZG, p.ZD, r.cfg.ZsTouch) ||
			(next < len(lines) && lines[next].Done)
	}
	ratio := r.cfg.ZsMinCoreRatio
	p.Real = ratio == 0 || p.ZG-p.ZD >= ratio*(p.GG-p.DD)
}

// pivotDepth 由成员数推出的级别：3-8 为 1，9-26 为 2，27 以上为 3。
func pivotDepth(lines int) int {
	switch {
	case lines >= 27:
		return 3
	case lines >= 9:
		return 2
	default:
		return 1
	}
}

// expandPivots 相邻且不构成趋势关系的中枢合并为更高级别的中枢。
func (r *ruleSet) expandPivots(lines []LineView, in []Pivot) []Pivot {
	var out []Pivot
	for _, p := range in {
		n := len(out)
		if n == 0 || r.relation(out[n-1], p) != 0 {
			out = append(out, p)
			continue
		}
		a := out[n-1]
		merged := Pivot{
			First: a.First,
			Last:  p.Last,
			Entry: a.Entry,
			Exit:  p.Exit,
			ZG:    math.Min(a.GG, p.GG),
			ZD:    math.Max(a.DD, p.DD),
			Depth: max(a.Depth, p.Depth) + 1,
		}
		r.finishPivot(lines, &merged)
		out[n-1] = merged
	}
	return out
}
