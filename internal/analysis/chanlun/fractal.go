package chanlun

// DetectFractals 在合并 K 线上识别分型，from 为起始中心下标。
// 少于三根 K 线时返回空。
func DetectFractals(candles []Candle, from int, r *ruleSet) []Fractal {
	var out []Fractal
	if from < 1 {
		from = 1
	}
	for i := from; i < len(candles)-1; i++ {
		if f, ok := fractalAt(candles, i, r); ok {
			out = append(out, f)
		}
	}
	return out
}

func fractalAt(cs []Candle, i int, r *ruleSet) (Fractal, bool) {
	a, b, c := cs[i-1], cs[i], cs[i+1]
	var kind FractalKind
	switch {
	case above(b.High, a.High, r.fxEqual) && above(b.High, c.High, r.fxEqual):
		kind = Top
	case above(a.Low, b.Low, r.fxEqual) && above(c.Low, b.Low, r.fxEqual):
		kind = Bottom
	default:
		return Fractal{}, false
	}
	if r.fxStrict {
		// 第三根 K 线需突破第一根的另一端
		if kind == Top && !above(a.Low, c.Low, r.fxEqual) {
			return Fractal{}, false
		}
		if kind == Bottom && !above(c.High, a.High, r.fxEqual) {
			return Fractal{}, false
		}
	}
	f := Fractal{
		Kind:     kind,
		Center:   i,
		Time:     b.Time,
		Strength: fractalStrength(kind, a, b, c),
	}
	if kind == Top {
		f.Value = b.High
	} else {
		f.Value = b.Low
	}
	// 确认：三元组之后还有一根已完成的 K 线，且没有越过中心极值
	if i+2 < len(cs)-1 {
		next := cs[i+2]
		if kind == Top {
			f.Done = next.High <= b.High
		} else {
			f.Done = next.Low >= b.Low
		}
	}
	return f, true
}

func above(x, y float64, equal bool) bool {
	if equal {
		return x >= y
	}
	return x > y
}

// fractalStrength 第三根 K 线的五项形态检查，只用于过滤。
func fractalStrength(kind FractalKind, a, b, c Candle) int {
	score := 0
	body := c.Close - c.Open
	rng := c.High - c.Low
	mid := (a.High + a.Low) / 2
	if kind == Top {
		body = -body
		if body > 0 {
			score++
		}
		if c.Close < mid {
			score++
		}
		if c.Low < a.Low {
			score++
		}
		if c.Close < b.Low {
			score++
		}
	} else {
		if body > 0 {
			score++
		}
		if c.Close > mid {
			score++
		}
		if c.High > a.High {
			score++
		}
		if c.Close > b.High {
			score++
		}
	}
	if rng > 0 && body >= rng/2 {
		score++
	}
	return score
}

// finalFractals 中心 K 线及其后两根都已固定的分型个数。
func finalFractals(fractals []Fractal, candleCount int) int {
	n := 0
	for n < len(fractals) && fractals[n].Center <= candleCount-4 {
		n++
	}
	return n
}
