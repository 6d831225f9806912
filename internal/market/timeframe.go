package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe 描述固定周期，例如 1m/15m/1h/4h/1d。
type Timeframe struct {
	Label    string
	Duration time.Duration
}

// ParseTimeframe 解析 "15m"/"1h"/"1d"/"1w" 形式的周期。
func ParseTimeframe(raw string) (Timeframe, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	if len(label) < 2 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", raw)
	}
	unit := label[len(label)-1]
	n, err := strconv.Atoi(label[:len(label)-1])
	if err != nil || n <= 0 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", raw)
	}
	var base time.Duration
	switch unit {
	case 'm':
		base = time.Minute
	case 'h':
		base = time.Hour
	case 'd':
		base = 24 * time.Hour
	case 'w':
		base = 7 * 24 * time.Hour
	default:
		return Timeframe{}, fmt.Errorf("invalid timeframe unit %q", raw)
	}
	return Timeframe{Label: label, Duration: time.Duration(n) * base}, nil
}

func (tf Timeframe) durationMillis() int64 {
	return tf.Duration.Milliseconds()
}

// AlignRange 将区间两端对齐到周期边界（起点向上取整，终点向下取整）。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	step := tf.durationMillis()
	if step <= 0 {
		return start, end
	}
	alStart := start - start%step
	if alStart < start {
		alStart += step
	}
	alEnd := end - end%step
	return alStart, alEnd
}

// ExpectedCandles 返回对齐后区间内应当存在的 K 线数量。
func (tf Timeframe) ExpectedCandles(alStart, alEnd int64) int64 {
	step := tf.durationMillis()
	if step <= 0 || alEnd < alStart {
		return 0
	}
	return (alEnd-alStart)/step + 1
}
