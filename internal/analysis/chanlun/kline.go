package chanlun

import "chanlun/internal/market"

// Normalizer 对原始 K 线做包含处理，只有最后一根合并 K 线会被原地修改。
type Normalizer struct {
	candles []Candle
	last    market.Candle
	count   int
}

// Validate 检查一批 K 线的时间顺序，返回去掉完全重复数据后的切片，不修改状态。
func (n *Normalizer) Validate(bars []market.Candle) ([]market.Candle, error) {
	out := make([]market.Candle, 0, len(bars))
	prev, have := n.last, n.count > 0
	for i, bar := range bars {
		if have {
			if bar.OpenTime < prev.OpenTime {
				return nil, &DataOrderError{Index: i, Prev: prev.OpenTime, Got: bar.OpenTime}
			}
			if bar.OpenTime == prev.OpenTime {
				if !bar.SameOHLCV(prev) {
					return nil, &DataOrderError{Index: i, Prev: prev.OpenTime, Got: bar.OpenTime}
				}
				continue
			}
		}
		out = append(out, bar)
		prev, have = bar, true
	}
	return out, nil
}

// Push 依次合并已校验的 K 线。offset 是第一根的全局下标，返回第一根被修改的合并 K 线下标。
func (n *Normalizer) Push(bars []market.Candle, offset int) int {
	first := len(n.candles)
	if first > 0 && len(bars) > 0 {
		first--
	}
	for i, bar := range bars {
		n.add(bar, offset+i)
	}
	return first
}

func (n *Normalizer) add(bar market.Candle, idx int) {
	gap := n.count > 0 && (bar.Low > n.last.High || bar.High < n.last.Low)
	n.last = bar
	n.count++

	if len(n.candles) == 0 {
		n.candles = append(n.candles, newCandle(0, bar, idx, Up, gap))
		return
	}
	c := &n.candles[len(n.candles)-1]
	if !c.contains(bar.High, bar.Low) {
		dir := Down
		if bar.High > c.High {
			dir = Up
		}
		n.candles = append(n.candles, newCandle(len(n.candles), bar, idx, dir, gap))
		return
	}

	// 包含关系：按当前方向合并，向上取高高，向下取低低
	if c.Dir == Up {
		if bar.High > c.High {
			c.High, c.HighBar = bar.High, idx
		}
		if bar.Low > c.Low {
			c.Low, c.LowBar = bar.Low, idx
		}
		c.Time = timeOf(c, bar, idx, c.HighBar)
	} else {
		if bar.High < c.High {
			c.High, c.HighBar = bar.High, idx
		}
		if bar.Low < c.Low {
			c.Low, c.LowBar = bar.Low, idx
		}
		c.Time = timeOf(c, bar, idx, c.LowBar)
	}
	c.Close = bar.Close
	c.Volume += bar.Volume
	c.BarEnd = idx
	c.EndTime = bar.OpenTime
	c.Count++
	c.Gap = c.Gap || gap
}

func timeOf(c *Candle, bar market.Candle, idx, defining int) int64 {
	if defining == idx {
		return bar.OpenTime
	}
	return c.Time
}

func newCandle(index int, bar market.Candle, idx int, dir Direction, gap bool) Candle {
	return Candle{
		Index:    index,
		Time:     bar.OpenTime,
		EndTime:  bar.OpenTime,
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
		BarStart: idx,
		BarEnd:   idx,
		Count:    1,
		Gap:      gap,
		Dir:      dir,
		HighBar:  idx,
		LowBar:   idx,
	}
}

// Candles 返回合并 K 线（共享底层数组，调用方不得修改）。
func (n *Normalizer) Candles() []Candle { return n.candles }

func (n *Normalizer) Len() int { return len(n.candles) }
