package chanlun

import (
	"errors"
	"testing"

	"chanlun/internal/market"
)

func pushAll(t *testing.T, n *Normalizer, bars []market.Candle) {
	t.Helper()
	clean, err := n.Validate(bars)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	n.Push(clean, n.count)
}

func TestNormalizerContainment(t *testing.T) {
	n := &Normalizer{}
	pushAll(t, n, []market.Candle{
		bar(0, 9, 7),
		bar(1, 10, 8),
		bar(2, 9.5, 8.5),
		bar(3, 11, 7),
	})
	cs := n.Candles()
	if len(cs) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(cs))
	}
	c := cs[1]
	if c.High != 11 || c.Low != 8.5 {
		t.Fatalf("merged candle = (%v,%v), want (11,8.5)", c.High, c.Low)
	}
	if c.Dir != Up || c.Count != 3 || c.BarStart != 1 || c.BarEnd != 3 {
		t.Fatalf("unexpected merged candle %+v", c)
	}
	if c.HighBar != 3 || c.LowBar != 2 {
		t.Fatalf("high/low bar = %d/%d", c.HighBar, c.LowBar)
	}
	if c.Time != 3*minute || c.EndTime != 3*minute {
		t.Fatalf("time = %d end = %d", c.Time, c.EndTime)
	}
}

func TestNormalizerDownMerge(t *testing.T) {
	n := &Normalizer{}
	pushAll(t, n, []market.Candle{
		bar(0, 10, 8),
		bar(1, 9, 7),
		bar(2, 8.5, 7.5),
	})
	cs := n.Candles()
	if len(cs) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(cs))
	}
	if c := cs[1]; c.Dir != Down || c.High != 8.5 || c.Low != 7 || c.Time != 1*minute {
		t.Fatalf("down merge = %+v", c)
	}
}

func TestNormalizerNoAdjacentContainment(t *testing.T) {
	n := &Normalizer{}
	pushAll(t, n, randomWalk(800, 3))
	cs := n.Candles()
	if len(cs) < 10 {
		t.Fatalf("too few candles: %d", len(cs))
	}
	total := 0
	for i, c := range cs {
		total += c.Count
		if c.Index != i {
			t.Fatalf("candle %d has index %d", i, c.Index)
		}
		if i > 0 && cs[i-1].contains(c.High, c.Low) {
			t.Fatalf("candles %d and %d contain each other", i-1, i)
		}
		if i > 0 && c.BarStart != cs[i-1].BarEnd+1 {
			t.Fatalf("candle %d does not continue bar span", i)
		}
	}
	if total != 800 {
		t.Fatalf("candles cover %d bars, want 800", total)
	}
}

func TestNormalizerGap(t *testing.T) {
	n := &Normalizer{}
	pushAll(t, n, []market.Candle{bar(0, 10, 9), bar(1, 12, 11)})
	cs := n.Candles()
	if !cs[1].Gap || cs[0].Gap {
		t.Fatalf("gap flags = %v,%v", cs[0].Gap, cs[1].Gap)
	}
}

func TestNormalizerOrdering(t *testing.T) {
	n := &Normalizer{}
	pushAll(t, n, []market.Candle{bar(0, 10, 9), bar(1, 11, 10), bar(2, 12, 11)})
	before := append([]Candle(nil), n.Candles()...)

	_, err := n.Validate([]market.Candle{bar(3, 13, 12), bar(1, 11, 10.5)})
	var orderErr *DataOrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected DataOrderError, got %v", err)
	}
	if orderErr.Index != 1 || orderErr.Got != 1*minute {
		t.Fatalf("unexpected error %+v", orderErr)
	}
	if len(n.Candles()) != len(before) || n.Candles()[2] != before[2] {
		t.Fatal("validate mutated the normalizer")
	}

	// 同一时间戳的重复数据被忽略，冲突数据报错
	clean, err := n.Validate([]market.Candle{bar(2, 12, 11), bar(3, 13, 12)})
	if err != nil || len(clean) != 1 {
		t.Fatalf("duplicate handling: %v %d", err, len(clean))
	}
	if _, err := n.Validate([]market.Candle{bar(2, 12.5, 11)}); !errors.As(err, &orderErr) {
		t.Fatalf("conflicting duplicate accepted: %v", err)
	}
}
